package payments

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

const maxReceiptNameLength = 100

// AttachReceipt uploads payment proof for an approved request and returns
// the stored path. The path is recorded when the request is marked paid.
func (s *Service) AttachReceipt(ctx context.Context, kind Kind, id, actorID int64, filename, contentType string, body io.Reader) (string, error) {
	if s.files == nil {
		return "", apperrors.Validation("receipt storage is not configured")
	}

	req, err := s.store.GetByID(ctx, kind, id)
	if err != nil {
		return "", err
	}
	if !req.IsParty(actorID) {
		return "", apperrors.Forbidden("not a party to %s payment request %d", kind, id)
	}
	if req.Status != StatusApproved {
		return "", transitionError(req, "receipts can only be attached to approved payment requests")
	}

	key := fmt.Sprintf("receipts/%s/%d/%s-%s", kind, id, uuid.NewString(), cleanFileName(filename))
	stored, err := s.files.Put(ctx, key, contentType, body)
	if err != nil {
		return "", fmt.Errorf("failed to store receipt: %w", err)
	}

	s.logger.Info("Receipt stored",
		zap.String("request_type", string(kind)),
		zap.Int64("request_id", id),
		zap.Int64("actor_id", actorID),
	)
	return stored, nil
}

// cleanFileName keeps letters, digits, dot, dash and underscore
func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
	cleaned = strings.TrimLeft(cleaned, ".")
	if len(cleaned) > maxReceiptNameLength {
		cleaned = cleaned[len(cleaned)-maxReceiptNameLength:]
	}
	if cleaned == "" {
		return "receipt"
	}
	return cleaned
}
