package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"personabot/internal/models"
)

type recordingHandler struct {
	mu       sync.Mutex
	order    map[int64][]string
	inflight map[int64]int
	overlap  atomic.Bool
	delay    time.Duration
	block    chan struct{} // when set, handler waits here first
	started  chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		order:    make(map[int64][]string),
		inflight: make(map[int64]int),
	}
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev models.Event) (models.Response, error) {
	h.mu.Lock()
	h.inflight[ev.UserID]++
	if h.inflight[ev.UserID] > 1 {
		h.overlap.Store(true)
	}
	h.mu.Unlock()

	if h.started != nil {
		h.started <- struct{}{}
	}
	if h.block != nil {
		<-h.block
	}
	if h.delay > 0 {
		time.Sleep(h.delay)
	}

	h.mu.Lock()
	h.order[ev.UserID] = append(h.order[ev.UserID], ev.Text)
	h.inflight[ev.UserID]--
	h.mu.Unlock()

	return models.Response{Text: "done:" + ev.Text}, nil
}

func submitAndCollect(t *testing.T, d *Dispatcher, ev models.Event) chan models.Response {
	t.Helper()
	result := make(chan models.Response, 1)
	if err := d.Submit(Job{Ctx: context.Background(), Event: ev, Result: result}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	return result
}

func waitResponse(t *testing.T, ch chan models.Response) models.Response {
	t.Helper()
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return models.Response{}
	}
}

func TestPerUserOrderAndSerialization(t *testing.T) {
	h := newRecordingHandler()
	h.delay = 2 * time.Millisecond
	d := NewDispatcher(2, 8, 64, h, time.Minute)

	const perUser = 10
	var results []chan models.Response
	for i := 0; i < perUser; i++ {
		for _, user := range []int64{1, 2, 3} {
			results = append(results, submitAndCollect(t, d, models.Event{
				UserID: user,
				Kind:   models.EventText,
				Text:   fmt.Sprintf("msg-%d", i),
			}))
		}
	}
	for _, ch := range results {
		waitResponse(t, ch)
	}

	if h.overlap.Load() {
		t.Fatal("two events for the same user ran concurrently")
	}
	for _, user := range []int64{1, 2, 3} {
		got := h.order[user]
		if len(got) != perUser {
			t.Fatalf("user %d processed %d events, want %d", user, len(got), perUser)
		}
		for i, text := range got {
			if want := fmt.Sprintf("msg-%d", i); text != want {
				t.Fatalf("user %d event %d = %q, want %q", user, i, text, want)
			}
		}
	}
}

func TestBacklogDrainsWithoutNewTraffic(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	h.started = make(chan struct{}, 1)
	d := NewDispatcher(1, 2, 16, h, time.Minute)

	// Queue a second event behind an in-flight one, then go quiet: the
	// backlog must still be dispatched once the first job finishes.
	first := submitAndCollect(t, d, models.Event{UserID: 1, Kind: models.EventText, Text: "a"})
	<-h.started
	second := submitAndCollect(t, d, models.Event{UserID: 1, Kind: models.EventText, Text: "b"})
	time.Sleep(20 * time.Millisecond) // pump parks with the backlog queued
	close(h.block)

	if resp := waitResponse(t, first); resp.Text != "done:a" {
		t.Fatalf("first response = %+v", resp)
	}
	if resp := waitResponse(t, second); resp.Text != "done:b" {
		t.Fatalf("second response = %+v", resp)
	}
}

func TestCancelUserDropsBacklog(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	h.started = make(chan struct{}, 1)
	d := NewDispatcher(1, 1, 16, h, time.Minute)

	first := submitAndCollect(t, d, models.Event{UserID: 1, Kind: models.EventText, Text: "running"})
	<-h.started // the first job is now on the worker

	queued := []chan models.Response{
		submitAndCollect(t, d, models.Event{UserID: 1, Kind: models.EventText, Text: "q1"}),
		submitAndCollect(t, d, models.Event{UserID: 1, Kind: models.EventText, Text: "q2"}),
	}
	time.Sleep(20 * time.Millisecond) // let the pump move them to the user queue

	d.CancelUser(1)
	for i, ch := range queued {
		if resp := waitResponse(t, ch); !resp.IsNoop() {
			t.Fatalf("dropped job %d got %+v, want noop", i, resp)
		}
	}

	close(h.block)
	if resp := waitResponse(t, first); resp.IsNoop() {
		t.Fatal("in-flight job must still complete")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order[1]) != 1 {
		t.Fatalf("processed %d events after cancel, want only the in-flight one", len(h.order[1]))
	}
}

func TestSubmitRejectsWhenSaturated(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	h.started = make(chan struct{}, 1)
	d := NewDispatcher(1, 1, 1, h, time.Minute)

	submitAndCollect(t, d, models.Event{UserID: 1, Kind: models.EventText, Text: "a"})
	<-h.started
	// The pump is now stuck acquiring a worker for the next user, so the
	// one-slot queue fills up.
	submitAndCollect(t, d, models.Event{UserID: 2, Kind: models.EventText, Text: "b"})
	time.Sleep(20 * time.Millisecond)
	submitAndCollect(t, d, models.Event{UserID: 3, Kind: models.EventText, Text: "c"})

	err := d.Submit(Job{
		Ctx:    context.Background(),
		Event:  models.Event{UserID: 4, Kind: models.EventText, Text: "d"},
		Result: make(chan models.Response, 1),
	})
	if !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("err = %v, want ErrDispatcherBusy", err)
	}
	close(h.block)
}

func TestNewUserProceedsWhileOtherIsBusy(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	h.started = make(chan struct{}, 4)
	d := NewDispatcher(2, 4, 16, h, time.Minute)

	submitAndCollect(t, d, models.Event{UserID: 1, Kind: models.EventText, Text: "slow"})
	<-h.started

	other := submitAndCollect(t, d, models.Event{UserID: 2, Kind: models.EventText, Text: "fast"})
	<-h.started
	close(h.block)

	if resp := waitResponse(t, other); resp.Text != "done:fast" {
		t.Fatalf("second user response = %+v", resp)
	}
}
