package test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RezaEskandarii/bulkmail/client"
	"github.com/RezaEskandarii/bulkmail/client/test/mocks"
	"github.com/RezaEskandarii/bulkmail/custom_errors"
	"github.com/RezaEskandarii/bulkmail/internal/constants"
	"github.com/RezaEskandarii/bulkmail/internal/state"
	"github.com/RezaEskandarii/bulkmail/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type submitterDeps struct {
	logs        *mocks.MockDeliveryLogStore
	users       *mocks.MockUserStore
	templates   *mocks.MockTemplateStore
	queue       *mocks.MockEnqueuer
	broadcaster *mocks.MockBroadcaster
}

func newSubmitterDeps() *submitterDeps {
	var nextID atomic.Int64
	return &submitterDeps{
		logs: &mocks.MockDeliveryLogStore{
			CreateLogFunc: func(ctx context.Context, userID int64, recipient string, templateID int64) (*types.DeliveryLog, error) {
				return &types.DeliveryLog{ID: nextID.Add(1), UserID: userID, Recipient: recipient,
					TemplateID: templateID, Status: state.StatusPending}, nil
			},
		},
		users:       &mocks.MockUserStore{},
		templates:   &mocks.MockTemplateStore{},
		queue:       &mocks.MockEnqueuer{},
		broadcaster: &mocks.MockBroadcaster{},
	}
}

func (d *submitterDeps) submitter(concurrency int) *client.BulkEmailSubmitter {
	return client.NewBulkEmailSubmitter(d.logs, d.users, d.templates, d.queue, d.broadcaster, concurrency, zap.NewNop())
}

func progressEvents(b *mocks.MockBroadcaster) []types.ProgressEvent {
	var out []types.ProgressEvent
	for _, e := range b.Events() {
		if e.Event == constants.EventBulkEmailProgress {
			out = append(out, e.Payload.(types.ProgressEvent))
		}
	}
	return out
}

func TestBulkEmailSubmitter_NoRecipients(t *testing.T) {
	deps := newSubmitterDeps()
	deps.users.ExistsFunc = func(context.Context, int64) (bool, error) {
		t.Fatal("references must not be checked for an empty batch")
		return false, nil
	}

	_, err := deps.submitter(10).SubmitBatch(context.Background(), types.BatchRequest{UserID: 1, TemplateID: 1})
	assert.ErrorIs(t, err, custom_errors.ErrNoRecipients)
}

func TestBulkEmailSubmitter_UnknownUser(t *testing.T) {
	deps := newSubmitterDeps()
	deps.users.ExistsFunc = func(context.Context, int64) (bool, error) { return false, nil }
	deps.logs.CreateLogFunc = func(context.Context, int64, string, int64) (*types.DeliveryLog, error) {
		t.Fatal("no log may be created for an unknown user")
		return nil, nil
	}

	_, err := deps.submitter(10).SubmitBatch(context.Background(), types.BatchRequest{
		UserID: 99, TemplateID: 1, Recipients: []string{"a@x.com"},
	})

	var refErr *custom_errors.InvalidReferenceError
	require.True(t, errors.As(err, &refErr))
	assert.Equal(t, "user", refErr.Entity)
	assert.Equal(t, int64(99), refErr.ID)
	assert.ErrorIs(t, err, custom_errors.ErrInvalidReference)
}

func TestBulkEmailSubmitter_UnknownTemplate(t *testing.T) {
	deps := newSubmitterDeps()
	deps.templates.FindByIDFunc = func(context.Context, int64) (*types.Template, error) { return nil, nil }
	var created atomic.Int32
	deps.logs.CreateLogFunc = func(context.Context, int64, string, int64) (*types.DeliveryLog, error) {
		created.Add(1)
		return &types.DeliveryLog{ID: 1}, nil
	}

	_, err := deps.submitter(10).SubmitBatch(context.Background(), types.BatchRequest{
		UserID: 1, TemplateID: 42, Recipients: []string{"a@x.com", "b@y.com"},
	})

	var refErr *custom_errors.InvalidReferenceError
	require.True(t, errors.As(err, &refErr))
	assert.Equal(t, "template", refErr.Entity)
	assert.Zero(t, created.Load())
}

func TestBulkEmailSubmitter_NoValidRecipients(t *testing.T) {
	deps := newSubmitterDeps()
	var created atomic.Int32
	deps.logs.CreateLogFunc = func(context.Context, int64, string, int64) (*types.DeliveryLog, error) {
		created.Add(1)
		return &types.DeliveryLog{ID: 1}, nil
	}

	_, err := deps.submitter(10).SubmitBatch(context.Background(), types.BatchRequest{
		UserID: 1, TemplateID: 1, Recipients: []string{"nope", "bad@", ""},
	})

	assert.ErrorIs(t, err, custom_errors.ErrNoValidRecipients)
	assert.Zero(t, created.Load())
	assert.Empty(t, deps.broadcaster.Events())
}

func TestBulkEmailSubmitter_MixedBatch(t *testing.T) {
	deps := newSubmitterDeps()
	var mu sync.Mutex
	var jobs []types.DispatchJob
	deps.queue.EnqueueFunc = func(_ context.Context, job types.DispatchJob) error {
		mu.Lock()
		defer mu.Unlock()
		jobs = append(jobs, job)
		return nil
	}

	result, err := deps.submitter(10).SubmitBatch(context.Background(), types.BatchRequest{
		UserID:     7,
		TemplateID: 3,
		Recipients: []string{"a@x.com", "bad", " b@y.com "},
		Subject:    "Hello",
	})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Valid)
	assert.Equal(t, []string{"bad"}, result.InvalidEmails)
	assert.Equal(t, 2, result.Successful)
	assert.Zero(t, result.Failed)

	require.Len(t, jobs, 2)
	recipients := map[string]bool{}
	for _, j := range jobs {
		recipients[j.Recipient] = true
		assert.Equal(t, int64(7), j.UserID)
		assert.NotZero(t, j.LogID)
		assert.Equal(t, "Hello", j.Subject)
		// empty body falls back to the template's
		assert.Equal(t, "Default email body", j.Body)
	}
	assert.Equal(t, map[string]bool{"a@x.com": true, "b@y.com": true}, recipients)
}

func TestBulkEmailSubmitter_BoundedConcurrency(t *testing.T) {
	deps := newSubmitterDeps()
	var inFlight, maxInFlight atomic.Int32
	var nextID atomic.Int64
	deps.logs.CreateLogFunc = func(_ context.Context, userID int64, recipient string, templateID int64) (*types.DeliveryLog, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return &types.DeliveryLog{ID: nextID.Add(1), UserID: userID, Recipient: recipient}, nil
	}

	recipients := make([]string, 100)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("user%d@example.com", i)
	}

	result, err := deps.submitter(10).SubmitBatch(context.Background(), types.BatchRequest{
		UserID: 1, TemplateID: 1, Recipients: recipients,
	})

	require.NoError(t, err)
	assert.Equal(t, 100, result.Successful)
	assert.LessOrEqual(t, maxInFlight.Load(), int32(10))
	assert.Greater(t, maxInFlight.Load(), int32(1))
}

func TestBulkEmailSubmitter_PartialFailuresDoNotAbort(t *testing.T) {
	deps := newSubmitterDeps()
	deps.logs.CreateLogFunc = func(_ context.Context, userID int64, recipient string, _ int64) (*types.DeliveryLog, error) {
		if recipient == "c@z.com" {
			return nil, errors.New("db down")
		}
		return &types.DeliveryLog{ID: 1, UserID: userID, Recipient: recipient}, nil
	}
	deps.queue.EnqueueFunc = func(_ context.Context, job types.DispatchJob) error {
		if job.Recipient == "d@w.com" {
			return errors.New("broker down")
		}
		return nil
	}

	result, err := deps.submitter(2).SubmitBatch(context.Background(), types.BatchRequest{
		UserID: 5, TemplateID: 1, Recipients: []string{"a@x.com", "b@y.com", "c@z.com", "d@w.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 2, result.Failed)

	events := progressEvents(deps.broadcaster)
	require.Len(t, events, 4)
	seen := map[int]bool{}
	for _, e := range events {
		assert.Equal(t, 4, e.Total)
		assert.Equal(t, int64(5), e.UserID)
		seen[e.Processed] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true, 4: true}, seen)
}

func TestBulkEmailSubmitter_CancelledBeforeAdmission(t *testing.T) {
	deps := newSubmitterDeps()
	var created atomic.Int32
	deps.logs.CreateLogFunc = func(context.Context, int64, string, int64) (*types.DeliveryLog, error) {
		created.Add(1)
		return &types.DeliveryLog{ID: 1}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := deps.submitter(10).SubmitBatch(ctx, types.BatchRequest{
		UserID: 1, TemplateID: 1, Recipients: []string{"a@x.com", "b@y.com"},
	})

	require.NoError(t, err)
	assert.Zero(t, created.Load())
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, progressEvents(deps.broadcaster), 2)
}

func TestBulkEmailSubmitter_UnitsOutliveCancellation(t *testing.T) {
	deps := newSubmitterDeps()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	deps.logs.CreateLogFunc = func(unitCtx context.Context, userID int64, recipient string, _ int64) (*types.DeliveryLog, error) {
		once.Do(func() { close(started) })
		time.Sleep(20 * time.Millisecond)
		if unitCtx.Err() != nil {
			return nil, unitCtx.Err()
		}
		return &types.DeliveryLog{ID: 1, UserID: userID, Recipient: recipient}, nil
	}

	go func() {
		<-started
		cancel()
	}()

	result, err := deps.submitter(1).SubmitBatch(ctx, types.BatchRequest{
		UserID: 1, TemplateID: 1, Recipients: []string{"a@x.com", "b@y.com", "c@z.com"},
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Successful, 1)
	assert.Equal(t, 3, result.Successful+result.Failed)
}

func TestBulkEmailSubmitter_SlowProgressDoesNotHoldSlot(t *testing.T) {
	deps := newSubmitterDeps()
	var created atomic.Int32
	deps.logs.CreateLogFunc = func(_ context.Context, userID int64, recipient string, _ int64) (*types.DeliveryLog, error) {
		return &types.DeliveryLog{ID: int64(created.Add(1)), UserID: userID, Recipient: recipient}, nil
	}

	release := make(chan struct{})
	var emits atomic.Int32
	deps.broadcaster.OnEmit = func(int64, string, any) {
		if emits.Add(1) == 1 {
			<-release
		}
	}

	done := make(chan *types.BatchResult, 1)
	go func() {
		res, err := deps.submitter(1).SubmitBatch(context.Background(), types.BatchRequest{
			UserID: 1, TemplateID: 1, Recipients: []string{"a@x.com", "b@y.com"},
		})
		assert.NoError(t, err)
		done <- res
	}()

	// the second recipient is admitted while the first progress event is stuck
	require.Eventually(t, func() bool { return created.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)

	select {
	case res := <-done:
		assert.Equal(t, 2, res.Successful)
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish")
	}
}
