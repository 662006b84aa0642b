package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublish(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		received <- ev
	}))
	defer srv.Close()

	n := New(srv.URL, 5*time.Second, zap.NewNop())
	n.Publish(Event{App: "demo", Action: "start", Outcome: "success", ExitCode: 0})

	select {
	case ev := <-received:
		assert.Equal(t, "demo", ev.App)
		assert.Equal(t, "start", ev.Action)
		assert.NotZero(t, ev.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("Webhook never received the event")
	}
}

func TestPublishRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	n := New(srv.URL, 5*time.Second, zap.NewNop())
	n.Publish(Event{App: "demo", Action: "stop", Outcome: "failure"})

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&calls) >= 2 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("Expected a retry, got %d calls", calls)
}

func TestNilNotifier(t *testing.T) {
	n := New("", time.Second, zap.NewNop())
	assert.Nil(t, n)
	// Publishing through a nil notifier must be a no-op, not a panic
	n.Publish(Event{App: "demo"})
}
