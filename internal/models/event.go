package models

// FlowKind identifies which conversational flow a session or event belongs to.
type FlowKind string

const (
	FlowNone          FlowKind = "none"
	FlowAssessment    FlowKind = "assessment"
	FlowConsultation  FlowKind = "consultation"
	FlowMediaAnalysis FlowKind = "media_analysis"
)

// EventKind tags the inbound event type as delivered by the transport.
type EventKind string

const (
	EventStart  EventKind = "start"
	EventAnswer EventKind = "answer"
	EventText   EventKind = "text"
	EventMedia  EventKind = "media"
	EventCancel EventKind = "cancel"
	EventMenu   EventKind = "menu"
)

// MediaKind is the media payload type for analysis events.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
	MediaVoice MediaKind = "voice"
)

// Event is the normalized inbound event. The transport adapter fills it from
// its own envelope; nothing downstream ever sees transport details.
type Event struct {
	ID     string    `json:"event_id"`
	UserID int64     `json:"user_id"`
	Kind   EventKind `json:"kind"`

	// Profile hints from the transport, used to keep the stored user fresh.
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`

	// Flow the event is declared for. Required for start events, used to
	// detect stale delivery on flow-internal ones.
	Flow FlowKind `json:"flow,omitempty"`

	// Answer events.
	Question int `json:"question,omitempty"`
	Answer   int `json:"answer,omitempty"`

	// Text events.
	Text string `json:"text,omitempty"`

	// Media events.
	MediaKind MediaKind `json:"media_kind,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`

	// Menu taps outside any flow (handbook, subscription, ...).
	MenuItem string `json:"menu_item,omitempty"`
}
