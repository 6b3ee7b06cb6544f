package models

// Button is one inline action offered with a response.
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

// Response is the outbound message handed back to the transport.
// RequiresFollowup tells the transport the flow expects another inbound
// event from the user.
type Response struct {
	Text             string   `json:"text"`
	Buttons          []Button `json:"buttons,omitempty"`
	RequiresFollowup bool     `json:"requires_followup"`
}

// IsNoop reports whether the response carries nothing to deliver. Stale or
// duplicated events resolve to a noop so the transport stays silent.
func (r Response) IsNoop() bool {
	return r.Text == "" && len(r.Buttons) == 0
}
