package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// recordingHandler captures execution order and can simulate blocking/panics
type recordingHandler struct {
	mu           sync.Mutex
	executionLog []string
	blockCh      chan struct{} // Close this to unblock processing
	waitCh       chan struct{} // Closed when processing starts (for synchronization)
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		executionLog: make([]string, 0),
		blockCh:      make(chan struct{}),
		waitCh:       make(chan struct{}),
	}
}

func (h *recordingHandler) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	h.mu.Lock()
	h.executionLog = append(h.executionLog, msg.Type)
	h.mu.Unlock()

	if msg.Type == "panic" {
		panic("simulated worker panic")
	}

	if msg.Type == "block" {
		if h.waitCh != nil {
			close(h.waitCh) // Signal we are running
		}
		<-h.blockCh // Wait until allowed to proceed
	}
}

func (h *recordingHandler) getLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]string, len(h.executionLog))
	copy(result, h.executionLog)
	return result
}

// newWorkerTestSession creates a session with a recording handler for testing
func newWorkerTestSession(id int64) (*UserSession, *recordingHandler) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := newRecordingHandler()
	// Unblock by default for simple tests
	close(handler.blockCh)

	s := &UserSession{
		userId:  id,
		inbox:   make(chan SessionMessage, 10),
		ctx:     ctx,
		cancel:  cancel,
		handler: handler,
	}
	s.StartWorker()
	return s, handler
}

func TestWorker_SequentialProcessing(t *testing.T) {
	session, handler := newWorkerTestSession(123)
	defer session.Stop()

	for _, typ := range []string{"first", "second", "third"} {
		session.Send(SessionMessage{Type: typ})
	}

	// Use SendSync as a barrier to ensure previous async messages are done
	session.SendSync(SessionMessage{Type: "barrier"})

	assert.Equal(t, []string{"first", "second", "third", "barrier"}, handler.getLog())
}

func TestWorker_PanicRecovery(t *testing.T) {
	session, handler := newWorkerTestSession(123)
	defer session.Stop()

	session.SendSync(SessionMessage{Type: "panic"})

	// Worker should survive and process the next message
	session.SendSync(SessionMessage{Type: "recovery"})

	log := handler.getLog()
	assert.Equal(t, []string{"panic", "recovery"}, log)
}

func TestWorker_StopDrainsQueueWithoutDeadlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := newRecordingHandler()

	session := &UserSession{
		userId:  999,
		inbox:   make(chan SessionMessage, 10),
		ctx:     ctx,
		cancel:  cancel,
		handler: handler,
	}
	session.StartWorker()

	// Queue up messages with Done channels (simulating SendSync callers waiting)
	for i := 0; i < 5; i++ {
		done := make(chan struct{})
		session.inbox <- SessionMessage{Type: "pending", Done: done}
	}

	stopDone := make(chan struct{})
	go func() {
		session.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		// Success: Stop returned without deadlock
	case <-time.After(1 * time.Second):
		t.Fatal("Stop() timed out - potential deadlock")
	}
}

func TestWorker_SendSync_WaitsForCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := newRecordingHandler()
	// Don't close - we control when processing completes

	session := &UserSession{
		userId:  123,
		inbox:   make(chan SessionMessage, 10),
		ctx:     ctx,
		cancel:  cancel,
		handler: handler,
	}
	session.StartWorker()
	defer session.Stop()

	sendDone := make(chan struct{})
	go func() {
		session.SendSync(SessionMessage{Type: "block"})
		close(sendDone)
	}()

	select {
	case <-handler.waitCh:
		// Handler is now processing
	case <-time.After(100 * time.Millisecond):
		t.Fatal("handler did not start")
	}

	select {
	case <-sendDone:
		t.Fatal("SendSync returned before handler completed")
	case <-time.After(50 * time.Millisecond):
		// Good - still waiting
	}

	close(handler.blockCh)

	select {
	case <-sendDone:
		// Success
	case <-time.After(100 * time.Millisecond):
		t.Fatal("SendSync did not return after handler completed")
	}
}

func TestWorker_TouchesActivity(t *testing.T) {
	session, _ := newWorkerTestSession(123)
	defer session.Stop()

	before := session.LastActivity()
	time.Sleep(5 * time.Millisecond)
	session.SendSync(SessionMessage{Type: "ping"})

	assert.True(t, session.LastActivity().After(before))
}
