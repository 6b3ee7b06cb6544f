package flow

// Response texts shared by the flow controllers. Kept in one place so the
// wording stays consistent across flows.
const (
	msgConsultationWelcome = "You are now talking to the AI consultant. Ask anything about personality types and relationships.\n\nMessages remaining this period: %d"
	msgConsultationLimit   = "You have used all your consultation messages for this period. The limit resets automatically, come back later."
	msgConsultationClosing = "\n\nThat was your last message for this period."
	msgConsultationFooter  = "\n\nMessages remaining: %d"
	msgMediaPromptPhoto    = "Send a photo and I will analyze the personality it suggests."
	msgMediaPromptVideo    = "Send a short video and I will analyze the personality it suggests."
	msgMediaPromptVoice    = "Send a voice message and I will transcribe and analyze it."
	msgMediaFailed         = "The analysis could not be completed. Please try again later."
)
