package flow

import (
	"context"
	"fmt"
	"strings"

	"personabot/internal/models"
)

const assessmentTestType = "personality"

// AssessmentState tracks progress through the question sequence. Index is the
// 1-based question currently awaiting an answer.
type AssessmentState struct {
	Index   int
	Answers []int
}

// AssessmentController runs the guided assessment: questions in order, one
// recorded answer each, a scored result at the end.
type AssessmentController struct {
	questions *QuestionSet
	results   ResultStore
}

// NewAssessmentController builds the controller over a validated question set.
func NewAssessmentController(questions *QuestionSet, results ResultStore) *AssessmentController {
	return &AssessmentController{questions: questions, results: results}
}

// Begin starts a fresh run at question one.
func (c *AssessmentController) Begin() (*AssessmentState, models.Response) {
	st := &AssessmentState{Index: 1, Answers: make([]int, 0, c.questions.Total())}
	return st, c.render(st.Index)
}

// Answer records one answer. Answers for any question other than the current
// one are stale and ignored without changing state. done reports that the
// final question was answered and the flow is over.
func (c *AssessmentController) Answer(ctx context.Context, userID int64, st *AssessmentState, question, answer int) (models.Response, bool, error) {
	if st == nil {
		return models.Response{}, false, fmt.Errorf("%w: nil assessment state", ErrInvariant)
	}
	if question != st.Index {
		return models.Response{}, false, nil
	}
	q := c.questions.Question(st.Index)
	if q == nil || len(st.Answers) != st.Index-1 {
		return models.Response{}, false, fmt.Errorf("%w: index %d with %d answers of %d questions",
			ErrInvariant, st.Index, len(st.Answers), c.questions.Total())
	}
	if answer < 0 || answer >= len(q.Answers) {
		// Malformed option index, treat like a stale tap.
		return models.Response{}, false, nil
	}

	st.Answers = append(st.Answers, answer)
	if st.Index < c.questions.Total() {
		st.Index++
		return c.render(st.Index), false, nil
	}

	result, err := c.questions.Score(st.Answers)
	if err != nil {
		return models.Response{}, false, fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	if err := c.results.SaveTestResult(ctx, userID, assessmentTestType, result); err != nil {
		return models.Response{}, false, fmt.Errorf("save assessment result: %w", err)
	}
	return resultResponse(result), true, nil
}

func (c *AssessmentController) render(index int) models.Response {
	q := c.questions.Question(index)
	buttons := make([]models.Button, 0, len(q.Answers))
	for i, option := range q.Answers {
		buttons = append(buttons, models.Button{
			Label:  option,
			Action: fmt.Sprintf("answer:%d:%d", index, i),
		})
	}
	return models.Response{
		Text:             fmt.Sprintf("Question %d of %d\n\n%s", index, c.questions.Total(), q.Text),
		Buttons:          buttons,
		RequiresFollowup: true,
	}
}

func resultResponse(r *TestResultData) models.Response {
	var b strings.Builder
	fmt.Fprintf(&b, "Your result: %s (%d%%)\n", r.TypeName, r.TypePercent)
	if r.Square != "" {
		fmt.Fprintf(&b, "Quadra: %s\n", r.Square)
	}
	if r.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", r.Role)
	}
	if r.Description != "" {
		b.WriteString("\n" + r.Description)
	}
	return models.Response{Text: b.String()}
}
