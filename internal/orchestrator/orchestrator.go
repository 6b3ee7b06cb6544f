package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"personabot/internal/entitlement"
	"personabot/internal/flow"
	"personabot/internal/models"
	"personabot/internal/record"
	"personabot/internal/session"
)

const (
	msgGenericError   = "Something went wrong. The flow was reset, please start again from the menu."
	msgRetryLater     = "The service is temporarily unavailable. Please try again later."
	msgFlowActive     = "You already have an active flow. Finish it or cancel it first."
	msgCancelled      = "Cancelled. You are back at the main menu."
	msgMenuHeader     = "Main menu. What would you like to do?"
	msgNotEntitled    = "Media analysis is available with a subscription or an analysis package."
	msgUnknownFlow    = "I don't know that flow."
	msgMediaKindError = "Choose what to analyze: a photo, a video, or a voice message."
)

// EntitlementChecker is the fresh premium-access check performed on every
// gated flow start.
type EntitlementChecker interface {
	Check(ctx context.Context, externalID int64) (entitlement.Snapshot, error)
	WebviewURL(section string, externalID int64) string
}

// EventDeduper detects repeated delivery of the same event id.
type EventDeduper interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// Orchestrator routes inbound events to flow controllers, holding the single
// per-user session and guaranteeing per-user serial processing via keyed
// locks. Sessions and locks are keyed by the transport's external user id.
type Orchestrator struct {
	store        *session.Store
	records      *record.Service
	entitlements EntitlementChecker
	assessment   *flow.AssessmentController
	consultation *flow.ConsultationController
	media        *flow.MediaController

	dedupe    EventDeduper
	dedupeTTL time.Duration

	// userLocks is retained per user for the process lifetime: one mutex
	// per user ever seen, which stays small for a single-bot audience.
	// Pruning would race with a concurrently held lock.
	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

// New builds the orchestrator. dedupe may be nil, in which case duplicate
// event ids are not filtered.
func New(
	store *session.Store,
	records *record.Service,
	entitlements EntitlementChecker,
	assessment *flow.AssessmentController,
	consultation *flow.ConsultationController,
	media *flow.MediaController,
	dedupe EventDeduper,
	dedupeTTL time.Duration,
) *Orchestrator {
	return &Orchestrator{
		store:        store,
		records:      records,
		entitlements: entitlements,
		assessment:   assessment,
		consultation: consultation,
		media:        media,
		dedupe:       dedupe,
		dedupeTTL:    dedupeTTL,
		userLocks:    make(map[int64]*sync.Mutex),
	}
}

func (o *Orchestrator) userLock(userID int64) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		o.userLocks[userID] = l
	}
	return l
}

// HandleEvent processes one inbound event to completion and returns the
// outbound response. Events for the same user are serialized; a noop response
// means the transport should stay silent.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev models.Event) (models.Response, error) {
	if ev.UserID <= 0 {
		return models.Response{}, errors.New("event missing user id")
	}
	if o.isDuplicate(ctx, ev) {
		return models.Response{}, nil
	}

	lock := o.userLock(ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	user, err := o.records.GetOrCreateUser(ctx, ev.UserID, ev.Username, ev.FirstName, ev.LastName)
	if err != nil {
		return models.Response{}, fmt.Errorf("resolve user: %w", err)
	}
	o.logAction(ctx, user.ID, ev)

	switch ev.Kind {
	case models.EventCancel:
		return o.cancelLocked(ev.UserID), nil
	case models.EventMenu:
		o.store.Destroy(ev.UserID)
		return o.menuResponse(ev.UserID, ev.MenuItem), nil
	case models.EventStart:
		return o.handleStart(ctx, user.ID, ev)
	case models.EventAnswer:
		return o.handleAnswer(ctx, user.ID, ev)
	case models.EventText:
		return o.handleText(ctx, user.ID, ev)
	case models.EventMedia:
		return o.handleMedia(ctx, user.ID, ev)
	default:
		return models.Response{}, fmt.Errorf("unknown event kind: %s", ev.Kind)
	}
}

// Cancel destroys the user's session out of band. It goes through the store
// directly so it works even while an event for the user is suspended on a
// collaborator call.
func (o *Orchestrator) Cancel(externalID int64) models.Response {
	return o.cancelLocked(externalID)
}

func (o *Orchestrator) cancelLocked(externalID int64) models.Response {
	o.store.Destroy(externalID)
	resp := o.menuResponse(externalID, "")
	resp.Text = msgCancelled + "\n\n" + resp.Text
	return resp
}

// MainMenu is the top-level surface shown outside any flow.
func (o *Orchestrator) MainMenu(externalID int64) models.Response {
	return o.menuResponse(externalID, "")
}

func (o *Orchestrator) isDuplicate(ctx context.Context, ev models.Event) bool {
	if o.dedupe == nil || ev.ID == "" {
		return false
	}
	fresh, err := o.dedupe.SetNX(ctx, "event:"+ev.ID, 1, o.dedupeTTL)
	if err != nil {
		// Dedupe is best-effort: fail open so a cache outage never drops
		// legitimate traffic.
		log.Printf("event dedupe unavailable: %v", err)
		return false
	}
	return !fresh
}

func (o *Orchestrator) handleStart(ctx context.Context, userID int64, ev models.Event) (models.Response, error) {
	if o.store.Get(ev.UserID) != nil {
		return models.Response{Text: msgFlowActive}, nil
	}

	switch ev.Flow {
	case models.FlowAssessment:
		st, resp := o.assessment.Begin()
		o.store.Put(&session.Session{UserID: ev.UserID, Kind: models.FlowAssessment, Assessment: st})
		return resp, nil

	case models.FlowConsultation:
		st, resp, err := o.consultation.Begin(ctx, userID)
		if err != nil {
			log.Printf("consultation begin failed for user %d: %v", ev.UserID, err)
			return models.Response{Text: msgRetryLater}, nil
		}
		if st != nil {
			o.store.Put(&session.Session{UserID: ev.UserID, Kind: models.FlowConsultation, Consultation: st})
		}
		return resp, nil

	case models.FlowMediaAnalysis:
		snap, err := o.entitlements.Check(ctx, ev.UserID)
		if err != nil {
			log.Printf("entitlement check failed for user %d: %v", ev.UserID, err)
			return models.Response{Text: msgRetryLater}, nil
		}
		if !snap.Allowed() {
			return models.Response{
				Text: msgNotEntitled,
				Buttons: []models.Button{
					{Label: "Subscription", URL: o.entitlements.WebviewURL("subscription", ev.UserID)},
					{Label: "Packages", URL: o.entitlements.WebviewURL("packages", ev.UserID)},
				},
			}, nil
		}
		st, resp, err := o.media.Begin(ev.MediaKind)
		if err != nil {
			return models.Response{Text: msgMediaKindError}, nil
		}
		o.store.Put(&session.Session{UserID: ev.UserID, Kind: models.FlowMediaAnalysis, Media: st})
		return resp, nil

	default:
		return models.Response{Text: msgUnknownFlow}, nil
	}
}

func (o *Orchestrator) handleAnswer(ctx context.Context, userID int64, ev models.Event) (models.Response, error) {
	sess := o.store.Get(ev.UserID)
	if sess == nil || sess.Kind != models.FlowAssessment {
		return models.Response{}, nil
	}

	resp, done, err := o.assessment.Answer(ctx, userID, sess.Assessment, ev.Question, ev.Answer)
	if err != nil {
		return o.failFlow(ev.UserID, "assessment", err), nil
	}
	if done {
		o.store.Destroy(ev.UserID)
	} else if !resp.IsNoop() {
		// Stale taps must not keep an abandoned session alive.
		o.store.Touch(ev.UserID)
	}
	return resp, nil
}

func (o *Orchestrator) handleText(ctx context.Context, userID int64, ev models.Event) (models.Response, error) {
	sess := o.store.Get(ev.UserID)
	if sess == nil || sess.Kind != models.FlowConsultation {
		return models.Response{}, nil
	}

	resp, done, err := o.suspendedConsultation(ctx, userID, ev, sess)
	if errors.Is(err, errSessionGone) {
		return models.Response{}, nil
	}
	if err != nil {
		return o.failFlow(ev.UserID, "consultation", err), nil
	}
	if done {
		o.store.Destroy(ev.UserID)
	} else {
		o.store.Touch(ev.UserID)
	}
	return resp, nil
}

func (o *Orchestrator) handleMedia(ctx context.Context, userID int64, ev models.Event) (models.Response, error) {
	sess := o.store.Get(ev.UserID)
	if sess == nil || sess.Kind != models.FlowMediaAnalysis {
		return models.Response{}, nil
	}

	epoch := sess.Epoch
	cctx, cancel := context.WithCancel(ctx)
	o.store.SetBusy(ev.UserID, true, cancel)
	resp, done, err := o.media.Media(cctx, userID, sess.Media, ev.MediaKind, ev.MediaRef)
	o.store.SetBusy(ev.UserID, false, nil)
	cancel()

	if o.store.Epoch(ev.UserID) != epoch {
		// Session was cancelled while the analysis ran; its result is void.
		return models.Response{}, nil
	}
	if err != nil {
		return o.failFlow(ev.UserID, "media_analysis", err), nil
	}
	if done {
		o.store.Destroy(ev.UserID)
	}
	return resp, nil
}

var errSessionGone = errors.New("session destroyed during suspension")

func (o *Orchestrator) suspendedConsultation(ctx context.Context, userID int64, ev models.Event, sess *session.Session) (models.Response, bool, error) {
	epoch := sess.Epoch
	cctx, cancel := context.WithCancel(ctx)
	o.store.SetBusy(ev.UserID, true, cancel)
	resp, done, err := o.consultation.Message(cctx, userID, sess.Consultation, ev.Text)
	o.store.SetBusy(ev.UserID, false, nil)
	cancel()

	if o.store.Epoch(ev.UserID) != epoch {
		return models.Response{}, false, errSessionGone
	}
	return resp, done, err
}

// failFlow handles controller errors: invariant violations are logged as bugs
// and answered generically, everything else reads as a collaborator outage.
// Either way the flow terminates.
func (o *Orchestrator) failFlow(externalID int64, flowName string, err error) models.Response {
	o.store.Destroy(externalID)
	if errors.Is(err, flow.ErrInvariant) {
		log.Printf("invariant violation in %s flow for user %d: %v", flowName, externalID, err)
		return models.Response{Text: msgGenericError}
	}
	log.Printf("%s flow failed for user %d: %v", flowName, externalID, err)
	return models.Response{Text: msgRetryLater}
}

func (o *Orchestrator) logAction(ctx context.Context, userID int64, ev models.Event) {
	details := string(ev.Flow)
	if ev.MenuItem != "" {
		details = ev.MenuItem
	}
	if err := o.records.LogAction(ctx, userID, string(ev.Kind), details); err != nil {
		log.Printf("log action for user %d: %v", userID, err)
	}
}

func (o *Orchestrator) menuResponse(externalID int64, item string) models.Response {
	switch item {
	case "handbook", "tests", "subscription", "packages", "courses", "cards":
		return models.Response{
			Text:    "Open the " + item + " section:",
			Buttons: []models.Button{{Label: "Open", URL: o.entitlements.WebviewURL(item, externalID)}},
		}
	}
	return models.Response{
		Text: msgMenuHeader,
		Buttons: []models.Button{
			{Label: "🧠 Personality test", Action: "start:assessment"},
			{Label: "🤖 AI consultant", Action: "start:consultation"},
			{Label: "📷 Photo analysis", Action: "start:media:photo"},
			{Label: "🎤 Voice analysis", Action: "start:media:voice"},
			{Label: "📖 Handbook", URL: o.entitlements.WebviewURL("handbook", externalID)},
			{Label: "⭐ Subscription", URL: o.entitlements.WebviewURL("subscription", externalID)},
			{Label: "🎓 Courses", URL: o.entitlements.WebviewURL("courses", externalID)},
		},
	}
}
