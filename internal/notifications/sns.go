package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// SNSAPI is the part of the SNS client the publisher uses
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes events as JSON messages to one topic
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
	logger   *zap.Logger
}

func NewSNSPublisher(client SNSAPI, topicARN string, logger *zap.Logger) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN, logger: logger}
}

// NewPublisher returns an SNS publisher for topicARN, or a NopPublisher when
// no topic is configured.
func NewPublisher(ctx context.Context, region, topicARN string, logger *zap.Logger) (Publisher, error) {
	if topicARN == "" {
		logger.Info("No events topic configured, lifecycle events are disabled")
		return NopPublisher{}, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSNSPublisher(sns.NewFromConfig(cfg), topicARN, logger), nil
}

func (p *SNSPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
			"request_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.RequestType),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("Published event",
		zap.String("event", string(event.Type)),
		zap.String("request_type", event.RequestType),
		zap.Int64("request_id", event.RequestID),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}
