package payments

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"homebuild/project-portal/project-portal-backend/internal/notifications"
	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

// MockStore is a mock implementation of the Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateStage(ctx context.Context, in *NewStageRequest) (int64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) CreateCustom(ctx context.Context, in *NewCustomRequest) (int64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) GetByID(ctx context.Context, kind Kind, id int64) (*PaymentRequest, error) {
	args := m.Called(ctx, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentRequest), args.Error(1)
}

func (m *MockStore) ListForHomeowner(ctx context.Context, homeownerID int64) ([]PaymentRequest, error) {
	args := m.Called(ctx, homeownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PaymentRequest), args.Error(1)
}

func (m *MockStore) ListForContractor(ctx context.Context, contractorID int64) ([]PaymentRequest, error) {
	args := m.Called(ctx, contractorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PaymentRequest), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, kind Kind, id int64, patch Patch) (*PaymentRequest, error) {
	args := m.Called(ctx, kind, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentRequest), args.Error(1)
}

// memStore applies patches the way the SQL store does, with the
// conditional update guarded by a mutex.
type memStore struct {
	mu   sync.Mutex
	rows map[Kind]map[int64]PaymentRequest
}

func newMemStore(reqs ...PaymentRequest) *memStore {
	s := &memStore{rows: map[Kind]map[int64]PaymentRequest{KindStage: {}, KindCustom: {}}}
	for _, r := range reqs {
		s.rows[r.Kind][r.ID] = r
	}
	return s
}

func (s *memStore) CreateStage(context.Context, *NewStageRequest) (int64, error) {
	return 0, errors.New("not supported")
}

func (s *memStore) CreateCustom(context.Context, *NewCustomRequest) (int64, error) {
	return 0, errors.New("not supported")
}

func (s *memStore) GetByID(_ context.Context, kind Kind, id int64) (*PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[kind][id]
	if !ok {
		return nil, apperrors.NotFound("%s payment request %d not found", kind, id)
	}
	return &r, nil
}

func (s *memStore) ListForHomeowner(context.Context, int64) ([]PaymentRequest, error) {
	return nil, nil
}

func (s *memStore) ListForContractor(context.Context, int64) ([]PaymentRequest, error) {
	return nil, nil
}

func (s *memStore) Update(ctx context.Context, kind Kind, id int64, patch Patch) (*PaymentRequest, error) {
	current, err := s.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := patch.checkTransitions(current); err != nil {
		return nil, err
	}
	next := patch.applyTo(*current)
	if err := CheckInvariants(&next); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.rows[kind][id]
	if stored.Status != current.Status || stored.VerificationStatus != current.VerificationStatus {
		return nil, transitionError(&stored, "payment request changed concurrently")
	}
	s.rows[kind][id] = next
	return &next, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type fakeObjectStore struct {
	keys []string
	body []byte
}

func (f *fakeObjectStore) Put(_ context.Context, key, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	f.body = data
	return "s3://receipts-bucket/uploads/" + key, nil
}

func newTestService(t *testing.T, store Store) (*Service, *recordingPublisher) {
	publisher := &recordingPublisher{}
	svc := NewService(store, nil, publisher, zaptest.NewLogger(t))
	svc.now = func() time.Time { return fixedNow }
	return svc, publisher
}

func approvedStage() PaymentRequest {
	r := pendingStage()
	r.Status = StatusApproved
	r.ApprovedAmount = decimalNull("70000")
	r.ResponseDate = &requested
	return r
}

func paidStage(paidBy int64) PaymentRequest {
	r := approvedStage()
	r.Status = StatusPaid
	r.ResponseDate = nil
	r.PaymentDate = &fixedNow
	r.PaidBy = &paidBy
	r.TransactionReference = stringPtr("TX-1")
	return r
}

func TestUnifiedListMergesAndSummarizes(t *testing.T) {
	store := new(MockStore)
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2025, 4, d, 9, 0, 0, 0, time.UTC) }

	paid := approvedStage()
	paid.ID, paid.RequestDate = 2, day(3)
	paid.Status = StatusPaid
	paid.ResponseDate = nil
	paid.PaymentDate = &fixedNow
	paid.TransactionReference = stringPtr("TX-2")

	pending := pendingStage()
	pending.ID, pending.RequestDate = 1, day(5)

	rejected := PaymentRequest{ID: 9, Kind: KindCustom, HomeownerID: 41, ContractorID: 7, Title: "Extra wiring",
		RequestedAmount: dec("900"), Status: StatusRejected, VerificationStatus: VerificationPending,
		RequestDate: day(3), ResponseDate: &fixedNow}
	sameDayCustom := PaymentRequest{ID: 2, Kind: KindCustom, HomeownerID: 41, ContractorID: 7, Title: "Skylight",
		RequestedAmount: dec("100"), Status: StatusPending, VerificationStatus: VerificationPending,
		RequestDate: day(3)}

	store.On("ListForHomeowner", ctx, int64(41)).Return([]PaymentRequest{paid, pending, rejected, sameDayCustom}, nil).Once()
	store.On("ListForHomeowner", ctx, int64(41)).Return([]PaymentRequest{sameDayCustom, rejected, pending, paid}, nil).Once()
	svc, _ := newTestService(t, store)

	first, err := svc.UnifiedList(ctx, RoleHomeowner, 41)
	require.NoError(t, err)

	order := func(l *UnifiedList) []string {
		var out []string
		for _, r := range l.Requests {
			out = append(out, string(r.Kind)+":"+r.Title)
		}
		return out
	}
	assert.Equal(t, []string{"stage:Foundation", "custom:Extra wiring", "stage:Foundation", "custom:Skylight"}, order(first))
	assert.Equal(t, int64(1), first.Requests[0].ID)
	assert.Equal(t, int64(9), first.Requests[1].ID)
	assert.Equal(t, KindStage, first.Requests[2].Kind, "stage wins a tie on date and id")

	s := first.Summary
	assert.Equal(t, 4, s.TotalRequests)
	assert.Equal(t, 2, s.PendingRequests)
	assert.Equal(t, 1, s.ApprovedRequests, "paid counts as approved")
	assert.Equal(t, 1, s.PaidRequests)
	assert.Equal(t, 1, s.RejectedRequests)
	assert.True(t, dec("151000").Equal(s.TotalRequestedAmount))
	assert.True(t, dec("70000").Equal(s.TotalApprovedAmount))

	second, err := svc.UnifiedList(ctx, RoleHomeowner, 41)
	require.NoError(t, err)
	assert.Equal(t, order(first), order(second), "ordering does not depend on store order")
	store.AssertExpectations(t)
}

func TestUnifiedListEmpty(t *testing.T) {
	store := new(MockStore)
	ctx := context.Background()
	store.On("ListForContractor", ctx, int64(7)).Return(nil, nil)
	svc, _ := newTestService(t, store)

	list, err := svc.UnifiedList(ctx, RoleContractor, 7)

	require.NoError(t, err)
	assert.NotNil(t, list.Requests)
	assert.Empty(t, list.Requests)
	assert.Equal(t, 0, list.Summary.TotalRequests)
	assert.True(t, list.Summary.TotalRequestedAmount.IsZero())
}

func TestUnifiedListRejectsOtherRoles(t *testing.T) {
	svc, _ := newTestService(t, new(MockStore))

	_, err := svc.UnifiedList(context.Background(), ActorRole("architect"), 5)

	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestUnifiedListStorageUnavailable(t *testing.T) {
	store := new(MockStore)
	ctx := context.Background()
	store.On("ListForHomeowner", ctx, int64(41)).Return(nil, apperrors.StorageUnavailable(errors.New("timeout")))
	svc, _ := newTestService(t, store)

	_, err := svc.UnifiedList(ctx, RoleHomeowner, 41)

	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))
}

func TestGetForbiddenForOutsiders(t *testing.T) {
	r := pendingStage()
	svc, _ := newTestService(t, newMemStore(r))

	got, err := svc.Get(context.Background(), KindStage, r.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, "Foundation", got.Title)

	_, err = svc.Get(context.Background(), KindStage, r.ID, 99)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	_, err = svc.Get(context.Background(), KindCustom, r.ID, 41)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRespondApproveThenMarkPaidWithoutReference(t *testing.T) {
	store := newMemStore(pendingStage())
	svc, events := newTestService(t, store)
	ctx := context.Background()

	amount := dec("70000")
	approved, err := svc.Respond(ctx, KindStage, 1, 41, ActionApprove, ResponsePayload{ApprovedAmount: &amount})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.True(t, amount.Equal(approved.ApprovedAmount.Decimal))
	require.NotNil(t, approved.ResponseDate)
	assert.Equal(t, fixedNow, *approved.ResponseDate)
	assert.Nil(t, approved.PaymentDate)

	_, err = svc.Respond(ctx, KindStage, 1, 7, ActionMarkPaid, ResponsePayload{})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	stored, _ := store.GetByID(ctx, KindStage, 1)
	assert.Equal(t, StatusApproved, stored.Status)

	require.Len(t, events.events, 1)
	assert.Equal(t, notifications.EventApproved, events.events[0].Type)
	assert.Equal(t, int64(41), events.events[0].ActorID)
}

func TestRespondApproveDefaultsToRequestedAmount(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(pendingStage()))

	approved, err := svc.Respond(context.Background(), KindStage, 1, 41, ActionApprove, ResponsePayload{})

	require.NoError(t, err)
	assert.True(t, dec("75000").Equal(approved.ApprovedAmount.Decimal))
}

func TestRespondApproveAmountBounds(t *testing.T) {
	for _, amount := range []string{"0", "-5", "75000.01"} {
		t.Run(amount, func(t *testing.T) {
			store := newMemStore(pendingStage())
			svc, _ := newTestService(t, store)
			a := dec(amount)

			_, err := svc.Respond(context.Background(), KindStage, 1, 41, ActionApprove, ResponsePayload{ApprovedAmount: &a})

			assert.Contains(t, fieldsOf(t, err), "approved_amount")
			stored, _ := store.GetByID(context.Background(), KindStage, 1)
			assert.Equal(t, StatusPending, stored.Status)
		})
	}
}

func TestRespondApproveRejectedRequest(t *testing.T) {
	store := new(MockStore)
	ctx := context.Background()
	rejected := pendingStage()
	rejected.Status = StatusRejected
	rejected.ResponseDate = &requested
	store.On("GetByID", ctx, KindStage, int64(1)).Return(&rejected, nil)
	svc, events := newTestService(t, store)

	_, err := svc.Respond(ctx, KindStage, 1, 41, ActionApprove, ResponsePayload{})

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.KindInvalidTransition, appErr.Kind)
	assert.Equal(t, "rejected", appErr.CurrentStatus)
	store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, events.events)
}

func TestRespondReject(t *testing.T) {
	svc, events := newTestService(t, newMemStore(pendingStage()))
	notes := "  Not finished yet  "

	rejected, err := svc.Respond(context.Background(), KindStage, 1, 41, ActionReject, ResponsePayload{Notes: &notes})

	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.False(t, rejected.ApprovedAmount.Valid)
	assert.Equal(t, "Not finished yet", *rejected.HomeownerNotes)
	require.Len(t, events.events, 1)
	assert.Equal(t, notifications.EventRejected, events.events[0].Type)
}

func TestRespondForbidden(t *testing.T) {
	tests := []struct {
		name    string
		req     PaymentRequest
		actorID int64
		action  Action
	}{
		{name: "contractor approves", req: pendingStage(), actorID: 7, action: ActionApprove},
		{name: "outsider rejects", req: pendingStage(), actorID: 99, action: ActionReject},
		{name: "outsider marks paid", req: approvedStage(), actorID: 99, action: ActionMarkPaid},
		{name: "outsider verifies", req: approvedStage(), actorID: 99, action: ActionVerify},
		{name: "payer verifies own payment", req: paidStage(7), actorID: 7, action: ActionVerify},
		{name: "payer disputes own payment", req: paidStage(41), actorID: 41, action: ActionDispute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, newMemStore(tt.req))
			ref := "TX-1"

			_, err := svc.Respond(context.Background(), KindStage, 1, tt.actorID, tt.action, ResponsePayload{TransactionReference: &ref})

			assert.True(t, errors.Is(err, apperrors.ErrForbidden))
		})
	}
}

func TestRespondMarkPaidThenVerify(t *testing.T) {
	store := newMemStore(approvedStage())
	svc, events := newTestService(t, store)
	ctx := context.Background()
	ref := " TX-77 "
	receipt := "s3://receipts-bucket/uploads/receipts/stage/1/abc-receipt.pdf"

	paid, err := svc.Respond(ctx, KindStage, 1, 7, ActionMarkPaid, ResponsePayload{TransactionReference: &ref, ReceiptPath: &receipt})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, "TX-77", *paid.TransactionReference)
	assert.Equal(t, receipt, *paid.ReceiptPath)
	assert.Equal(t, fixedNow, *paid.PaymentDate)
	assert.Nil(t, paid.ResponseDate, "response date is cleared once paid")
	require.NotNil(t, paid.PaidBy)
	assert.Equal(t, int64(7), *paid.PaidBy)
	assert.Equal(t, VerificationPending, paid.VerificationStatus)

	verified, err := svc.Respond(ctx, KindStage, 1, 41, ActionVerify, ResponsePayload{})
	require.NoError(t, err)
	assert.Equal(t, VerificationVerified, verified.VerificationStatus)
	assert.Equal(t, StatusPaid, verified.Status)

	_, err = svc.Respond(ctx, KindStage, 1, 41, ActionDispute, ResponsePayload{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	_, err = svc.Respond(ctx, KindStage, 1, 7, ActionMarkPaid, ResponsePayload{TransactionReference: &ref})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition), "paid is terminal")

	require.Len(t, events.events, 2)
	assert.Equal(t, notifications.EventPaid, events.events[0].Type)
	assert.Equal(t, notifications.EventVerified, events.events[1].Type)
}

func TestRespondCounterpartyDisputes(t *testing.T) {
	svc, events := newTestService(t, newMemStore(paidStage(7)))

	disputed, err := svc.Respond(context.Background(), KindStage, 1, 41, ActionDispute, ResponsePayload{})

	require.NoError(t, err)
	assert.Equal(t, VerificationDisputed, disputed.VerificationStatus)
	assert.Equal(t, StatusPaid, disputed.Status)
	require.Len(t, events.events, 1)
	assert.Equal(t, notifications.EventDisputed, events.events[0].Type)
}

func TestRespondVerifyWithoutProof(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(approvedStage()))

	_, err := svc.Respond(context.Background(), KindStage, 1, 41, ActionDispute, ResponsePayload{})

	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestRespondMarkPaidOnPending(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(pendingStage()))

	_, err := svc.Respond(context.Background(), KindStage, 1, 7, ActionMarkPaid, ResponsePayload{})

	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestRespondPublishFailureIsNotFatal(t *testing.T) {
	svc, events := newTestService(t, newMemStore(pendingStage()))
	events.err = errors.New("sns down")

	approved, err := svc.Respond(context.Background(), KindStage, 1, 41, ActionApprove, ResponsePayload{})

	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
}

func TestRespondConcurrentApprove(t *testing.T) {
	store := newMemStore(pendingStage())
	svc, _ := newTestService(t, store)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := ActionApprove
			if i%2 == 1 {
				action = ActionReject
			}
			_, err := svc.Respond(context.Background(), KindStage, 1, 41, action, ResponsePayload{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrInvalidTransition):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	stored, _ := store.GetByID(context.Background(), KindStage, 1)
	assert.NotEqual(t, StatusPending, stored.Status)
	assert.NoError(t, CheckInvariants(stored))
}

func TestCreateStageUsesActorAsContractor(t *testing.T) {
	store := new(MockStore)
	ctx := context.Background()
	created := pendingStage()
	created.ID = 12
	store.On("CreateStage", ctx, mock.MatchedBy(func(in *NewStageRequest) bool {
		return in.ContractorID == 7
	})).Return(int64(12), nil)
	store.On("GetByID", ctx, KindStage, int64(12)).Return(&created, nil)
	svc, events := newTestService(t, store)

	got, err := svc.CreateStage(ctx, 7, NewStageRequest{ContractorID: 999, ProjectID: 3, HomeownerID: 41, StageName: "Foundation"})

	require.NoError(t, err)
	assert.Equal(t, "Foundation", got.Title)
	require.Len(t, events.events, 1)
	assert.Equal(t, notifications.EventSubmitted, events.events[0].Type)
	store.AssertExpectations(t)
}

func TestAttachReceipt(t *testing.T) {
	files := &fakeObjectStore{}
	svc, _ := newTestService(t, newMemStore(approvedStage()))
	svc.files = files

	path, err := svc.AttachReceipt(context.Background(), KindStage, 1, 7, `C:\scans\bank receipt (1).pdf`, "application/pdf", bytes.NewBufferString("%PDF"))

	require.NoError(t, err)
	require.Len(t, files.keys, 1)
	assert.True(t, strings.HasPrefix(files.keys[0], "receipts/stage/1/"))
	assert.True(t, strings.HasSuffix(files.keys[0], "-bank_receipt_1.pdf"))
	assert.Equal(t, "s3://receipts-bucket/uploads/"+files.keys[0], path)
	assert.Equal(t, []byte("%PDF"), files.body)
}

func TestAttachReceiptRules(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestService(t, newMemStore(approvedStage()))
	_, err := svc.AttachReceipt(ctx, KindStage, 1, 7, "r.pdf", "application/pdf", strings.NewReader("x"))
	assert.True(t, errors.Is(err, apperrors.ErrValidation), "storage not configured")

	svc.files = &fakeObjectStore{}
	_, err = svc.AttachReceipt(ctx, KindStage, 1, 99, "r.pdf", "application/pdf", strings.NewReader("x"))
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	pendingSvc, _ := newTestService(t, newMemStore(pendingStage()))
	pendingSvc.files = &fakeObjectStore{}
	_, err = pendingSvc.AttachReceipt(ctx, KindStage, 1, 7, "r.pdf", "application/pdf", strings.NewReader("x"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestCleanFileName(t *testing.T) {
	assert.Equal(t, "receipt.pdf", cleanFileName("../../etc/receipt.pdf"))
	assert.Equal(t, "receipt", cleanFileName("..."))
	assert.Equal(t, "scan_2.png", cleanFileName("scan 2.png"))
}
