package flow

import (
	"context"
	"fmt"

	"personabot/internal/models"
	"personabot/internal/quota"
)

const consultationSystemPrompt = "You are an expert consultant in psychology " +
	"and personality typing. Give practical, grounded answers about " +
	"personality types, relationships, and self-development. Be concise and " +
	"friendly."

// ConsultationState tracks one consultation conversation.
type ConsultationState struct {
	Used      int
	Remaining int
}

// ConsultationController runs the quota-limited AI consultation. The quota
// ledger is the only authority on how many messages are left; state fields
// are display hints.
type ConsultationController struct {
	ledger    *quota.Ledger
	completer Completer
}

// NewConsultationController builds the controller.
func NewConsultationController(ledger *quota.Ledger, completer Completer) *ConsultationController {
	return &ConsultationController{ledger: ledger, completer: completer}
}

// Begin opens a consultation when the user still has quota this period. A nil
// state means the flow did not start.
func (c *ConsultationController) Begin(ctx context.Context, userID int64) (*ConsultationState, models.Response, error) {
	remaining, err := c.ledger.Remaining(ctx, userID, quota.KindConsultationMessage)
	if err != nil {
		return nil, models.Response{}, fmt.Errorf("check consultation quota: %w", err)
	}
	if remaining <= 0 {
		return nil, models.Response{Text: msgConsultationLimit}, nil
	}
	return &ConsultationState{Remaining: remaining}, models.Response{
		Text:             fmt.Sprintf(msgConsultationWelcome, remaining),
		RequiresFollowup: true,
	}, nil
}

// Message charges one quota unit and forwards the text to the AI. The charge
// happens before the AI call, so a failed completion still counts. done
// reports that the flow is over, either because quota ran out before this
// message or because this was the last unit.
func (c *ConsultationController) Message(ctx context.Context, userID int64, st *ConsultationState, text string) (models.Response, bool, error) {
	if st == nil {
		return models.Response{}, false, fmt.Errorf("%w: nil consultation state", ErrInvariant)
	}

	dec, err := c.ledger.TryConsume(ctx, userID, quota.KindConsultationMessage)
	if err != nil {
		return models.Response{}, false, fmt.Errorf("consume consultation quota: %w", err)
	}
	if !dec.Allowed {
		return models.Response{Text: msgConsultationLimit}, true, nil
	}

	reply, err := c.completer.Complete(ctx, consultationSystemPrompt, text)
	if err != nil {
		return models.Response{}, false, fmt.Errorf("consultation completion: %w", err)
	}

	st.Used++
	st.Remaining = dec.Remaining

	out := reply
	if dec.Remaining <= 0 {
		out += msgConsultationClosing
		return models.Response{Text: out}, true, nil
	}
	out += fmt.Sprintf(msgConsultationFooter, dec.Remaining)
	return models.Response{Text: out, RequiresFollowup: true}, false, nil
}
