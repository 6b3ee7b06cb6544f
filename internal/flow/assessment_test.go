package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"personabot/internal/models"
)

type fakeResultStore struct {
	testResults []any
	analyses    []any
	failSave    bool
}

func (f *fakeResultStore) SaveTestResult(_ context.Context, _ int64, _ string, payload any) error {
	if f.failSave {
		return errors.New("storage down")
	}
	f.testResults = append(f.testResults, payload)
	return nil
}

func (f *fakeResultStore) SaveAnalysis(_ context.Context, _ int64, _ models.MediaKind, _ string, payload any) error {
	if f.failSave {
		return errors.New("storage down")
	}
	f.analyses = append(f.analyses, payload)
	return nil
}

func newTestAssessment(t *testing.T) (*AssessmentController, *fakeResultStore) {
	t.Helper()
	qs, err := LoadQuestionSet("")
	if err != nil {
		t.Fatalf("load default questions: %v", err)
	}
	store := &fakeResultStore{}
	return NewAssessmentController(qs, store), store
}

func TestAssessmentFullRun(t *testing.T) {
	c, store := newTestAssessment(t)
	ctx := context.Background()

	st, resp := c.Begin()
	if st.Index != 1 {
		t.Fatalf("begin index = %d, want 1", st.Index)
	}
	if !strings.Contains(resp.Text, "Question 1 of 16") {
		t.Fatalf("unexpected first prompt: %q", resp.Text)
	}
	if len(resp.Buttons) != 4 {
		t.Fatalf("first question buttons = %d, want 4", len(resp.Buttons))
	}

	// Always pick option 2, Pragmatist wins with all 16 points.
	for q := 1; q <= 16; q++ {
		resp, done, err := c.Answer(ctx, 10, st, q, 2)
		if err != nil {
			t.Fatalf("answer %d: %v", q, err)
		}
		if q < 16 {
			if done {
				t.Fatalf("answer %d: flow finished early", q)
			}
			if st.Index != q+1 {
				t.Fatalf("after answer %d index = %d", q, st.Index)
			}
		} else {
			if !done {
				t.Fatal("final answer did not finish the flow")
			}
			if !strings.Contains(resp.Text, "Pragmatist") {
				t.Fatalf("result text missing winner: %q", resp.Text)
			}
		}
	}

	if len(store.testResults) != 1 {
		t.Fatalf("saved results = %d, want 1", len(store.testResults))
	}
	result := store.testResults[0].(*TestResultData)
	if result.TypeName != "Pragmatist" || result.TypePercent != 100 {
		t.Fatalf("result = %s %d%%, want Pragmatist 100%%", result.TypeName, result.TypePercent)
	}
	if len(result.Answers) != 16 {
		t.Fatalf("stored answers = %d, want 16", len(result.Answers))
	}
}

func TestAssessmentStaleAnswerIgnored(t *testing.T) {
	c, _ := newTestAssessment(t)
	ctx := context.Background()

	st, _ := c.Begin()
	if _, _, err := c.Answer(ctx, 10, st, 1, 0); err != nil {
		t.Fatalf("answer 1: %v", err)
	}

	// A redelivered tap for question 1 must not advance or mutate state.
	resp, done, err := c.Answer(ctx, 10, st, 1, 3)
	if err != nil {
		t.Fatalf("stale answer: %v", err)
	}
	if done || !resp.IsNoop() {
		t.Fatalf("stale answer produced done=%v resp=%+v", done, resp)
	}
	if st.Index != 2 || len(st.Answers) != 1 || st.Answers[0] != 0 {
		t.Fatalf("state mutated by stale answer: %+v", st)
	}

	// Same for an answer to a future question.
	resp, done, _ = c.Answer(ctx, 10, st, 5, 1)
	if done || !resp.IsNoop() {
		t.Fatal("future answer must be ignored")
	}
}

func TestAssessmentOutOfRangeOptionIgnored(t *testing.T) {
	c, _ := newTestAssessment(t)
	st, _ := c.Begin()

	resp, done, err := c.Answer(context.Background(), 10, st, 1, 9)
	if err != nil {
		t.Fatalf("out of range option: %v", err)
	}
	if done || !resp.IsNoop() || len(st.Answers) != 0 {
		t.Fatal("out of range option must not be recorded")
	}
}

func TestAssessmentTieBreakIsDeterministic(t *testing.T) {
	qs, err := LoadQuestionSet("")
	if err != nil {
		t.Fatalf("load default questions: %v", err)
	}

	// Four points each: the tie resolves to the first canonical category.
	answers := make([]int, 16)
	for i := range answers {
		answers[i] = i % 4
	}
	for run := 0; run < 5; run++ {
		result, err := qs.Score(answers)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if result.TypeName != "Idealist" {
			t.Fatalf("run %d: tie resolved to %s, want Idealist", run, result.TypeName)
		}
		if result.TypePercent != 25 {
			t.Fatalf("run %d: percent = %d, want 25", run, result.TypePercent)
		}
	}
}

func TestAssessmentCorruptStateIsInvariant(t *testing.T) {
	c, _ := newTestAssessment(t)
	st, _ := c.Begin()
	st.Answers = []int{0, 1, 2} // inconsistent with Index 1

	_, _, err := c.Answer(context.Background(), 10, st, 1, 0)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("err = %v, want ErrInvariant", err)
	}
}

func TestAssessmentSaveFailurePropagates(t *testing.T) {
	c, store := newTestAssessment(t)
	ctx := context.Background()

	st, _ := c.Begin()
	for q := 1; q < 16; q++ {
		if _, _, err := c.Answer(ctx, 10, st, q, 0); err != nil {
			t.Fatalf("answer %d: %v", q, err)
		}
	}
	store.failSave = true
	_, _, err := c.Answer(ctx, 10, st, 16, 0)
	if err == nil || errors.Is(err, ErrInvariant) {
		t.Fatalf("err = %v, want a plain save error", err)
	}
}
