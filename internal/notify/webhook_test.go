package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/image-storage/internal/model"
	"github.com/aliskhannn/image-storage/internal/notify"
)

var strategy = retry.Strategy{Attempts: 3, Delay: 5 * time.Millisecond, Backoff: 2}

func TestWebhookDelivers(t *testing.T) {
	var (
		gotBody   []byte
		gotHeader http.Header
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := model.ImageRecord{UUID: uuid.New(), StoredPath: "user1/a.png", UserPath: "user1", SizeBytes: 7, Format: model.FormatPNG}
	sink := notify.NewWebhook(srv.URL, map[string]string{"X-Custom": "yes"}, time.Second, strategy)

	require.NoError(t, sink.Send(context.Background(), notify.ImageStored(rec)))

	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "yes", gotHeader.Get("X-Custom"))

	var payload struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, notify.EventImageStored, payload.Type)
	assert.Equal(t, rec.UUID.String(), payload.Data["uuid"])
	assert.Equal(t, "user1/a.png", payload.Data["stored_path"])
}

func TestWebhookRetriesTransientFailure(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := notify.NewWebhook(srv.URL, nil, time.Second, strategy)

	err := sink.Send(context.Background(), notify.BatchCompleted("batch-1", 3, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookGivesUpAfterRetries(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := notify.NewWebhook(srv.URL, nil, time.Second, strategy)

	err := sink.Send(context.Background(), notify.BatchCompleted("batch-1", 1, 1, 0))
	assert.Error(t, err)
	assert.Equal(t, int32(strategy.Attempts), atomic.LoadInt32(&calls))
}

// recordingSink captures events delivered through a dispatcher.
type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
	closed bool
}

func (r *recordingSink) Send(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestDispatcherFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	d := notify.NewDispatcher(a, b)

	d.Publish(context.Background(), notify.BatchCompleted("batch-1", 2, 2, 0))
	require.NoError(t, d.Close())

	for _, sink := range []*recordingSink{a, b} {
		require.Len(t, sink.events, 1)
		assert.Equal(t, notify.EventBatchCompleted, sink.events[0].Type)
		assert.True(t, sink.closed, "dispatcher must close its sinks")
	}
}

func TestDispatcherWithoutSinks(t *testing.T) {
	d := notify.NewDispatcher()

	d.Publish(context.Background(), notify.BatchCompleted("batch-1", 1, 1, 0))
	assert.NoError(t, d.Close())
}
