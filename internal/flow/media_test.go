package flow

import (
	"context"
	"errors"
	"testing"

	"personabot/internal/models"
	"personabot/internal/service/ai"
)

type fakeAnalyzer struct {
	analysis *ai.Analysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, _ models.MediaKind) (*ai.Analysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func TestMediaBeginPerKind(t *testing.T) {
	c := NewMediaController(&fakeAnalyzer{}, &fakeResultStore{})

	for _, kind := range []models.MediaKind{models.MediaPhoto, models.MediaVideo, models.MediaVoice} {
		st, resp, err := c.Begin(kind)
		if err != nil {
			t.Fatalf("begin %s: %v", kind, err)
		}
		if st.Kind != kind {
			t.Fatalf("begin %s: state kind = %s", kind, st.Kind)
		}
		if !resp.RequiresFollowup || resp.IsNoop() {
			t.Fatalf("begin %s: response = %+v", kind, resp)
		}
	}

	if _, _, err := c.Begin(models.MediaKind("sticker")); err == nil {
		t.Fatal("unknown kind must be rejected")
	}
}

func TestMediaAnalyzesOnceAndSaves(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &ai.Analysis{Summary: "clearly an Analyst", Model: "gpt-4o"}}
	store := &fakeResultStore{}
	c := NewMediaController(analyzer, store)

	st, _, _ := c.Begin(models.MediaPhoto)
	resp, done, err := c.Media(context.Background(), 10, st, models.MediaPhoto, "https://files/photo.jpg")
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	if !done {
		t.Fatal("successful analysis must end the flow")
	}
	if resp.Text != "clearly an Analyst" {
		t.Fatalf("response = %q", resp.Text)
	}
	if analyzer.calls != 1 || len(store.analyses) != 1 {
		t.Fatalf("calls = %d saves = %d, want 1 each", analyzer.calls, len(store.analyses))
	}
}

func TestMediaKindMismatchIgnored(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &ai.Analysis{Summary: "x"}}
	c := NewMediaController(analyzer, &fakeResultStore{})

	st, _, _ := c.Begin(models.MediaVoice)
	resp, done, err := c.Media(context.Background(), 10, st, models.MediaPhoto, "ref")
	if err != nil {
		t.Fatalf("mismatched media: %v", err)
	}
	if done || !resp.IsNoop() || analyzer.calls != 0 {
		t.Fatalf("mismatched media must be a noop: done=%v calls=%d", done, analyzer.calls)
	}
}

func TestMediaFailureStillEndsFlow(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("vision api down")}
	store := &fakeResultStore{}
	c := NewMediaController(analyzer, store)

	st, _, _ := c.Begin(models.MediaPhoto)
	resp, done, err := c.Media(context.Background(), 10, st, models.MediaPhoto, "ref")
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	if !done {
		t.Fatal("failed analysis must still end the flow")
	}
	if resp.IsNoop() || len(store.analyses) != 0 {
		t.Fatalf("failure response = %+v saves = %d", resp, len(store.analyses))
	}
}

func TestMediaSaveFailureStillEndsFlow(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &ai.Analysis{Summary: "s"}}
	store := &fakeResultStore{failSave: true}
	c := NewMediaController(analyzer, store)

	st, _, _ := c.Begin(models.MediaVoice)
	_, done, err := c.Media(context.Background(), 10, st, models.MediaVoice, "/tmp/voice.ogg")
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	if !done {
		t.Fatal("save failure must still end the flow")
	}
}
