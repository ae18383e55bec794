package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/logging"
	"github.com/soaringjerry/valuesreport/internal/services"
)

const feedbackTimeout = 15 * time.Second

// Outbox sends chat messages to a user.
type Outbox interface {
	Send(ctx context.Context, userID int64, msg Message) error
}

// AccessVerifier consumes one use of an access code.
type AccessVerifier interface {
	Verify(ctx context.Context, code string) (services.Verification, error)
}

// CategoryResolver maps value names to their primary category.
type CategoryResolver interface {
	PrimaryCategories(names []string) []string
}

// ReportBuilder produces the narrative report for a submission.
type ReportBuilder interface {
	Assemble(ctx context.Context, sub *services.Submission) *services.Report
}

// ReportDeliverer renders and sends a finished report.
type ReportDeliverer interface {
	Deliver(ctx context.Context, sub *services.Submission, report *services.Report) error
}

// ShareLinker issues a download link for a stored report.
type ShareLinker interface {
	ShareURL(reportID string) (string, error)
}

// Observer receives counters about the flow. All methods must be cheap.
type Observer interface {
	ObserveEvent(kind string)
	ObserveTransition(from, to string)
	ObserveAccess(result string)
	ObserveDelivered()
}

type nopObserver struct{}

func (nopObserver) ObserveEvent(string) {}
func (nopObserver) ObserveTransition(string, string) {}
func (nopObserver) ObserveAccess(string) {}
func (nopObserver) ObserveDelivered() {}

// Deps wires the machine to its collaborators. Links, Observer and Logger
// are optional.
type Deps struct {
	Gate        AccessVerifier
	Categories  CategoryResolver
	Submissions services.SubmissionStore
	Reports     ReportBuilder
	Delivery    ReportDeliverer
	Outbox      Outbox
	Links       ShareLinker
	Observer    Observer
	Logger      *zap.Logger
	// SectionTitles is listed in the ready notice.
	SectionTitles []string
}

// Machine drives every user's conversation. Events for one user are handled
// to completion one at a time.
type Machine struct {
	d        Deps
	sessions *Registry
	log      *zap.Logger
	obs      Observer
}

func NewMachine(d Deps) *Machine {
	obs := d.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Machine{d: d, sessions: NewRegistry(), log: logging.OrNop(d.Logger), obs: obs}
}

// Session returns a copy of the user's live session.
func (m *Machine) Session(userID int64) (Session, bool) {
	s, ok := m.sessions.get(userID)
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Active is the number of in-flight sessions.
func (m *Machine) Active() int { return m.sessions.Len() }

// Handle processes one inbound event. The returned error is a transport
// failure; user mistakes are answered in chat and return nil.
func (m *Machine) Handle(ctx context.Context, ev Event) error {
	release := m.sessions.lock(ev.UserID)
	defer release()

	m.obs.ObserveEvent(ev.Kind.String())

	if ev.Kind == EventCommand {
		switch strings.ToLower(strings.TrimPrefix(ev.Text, "/")) {
		case CommandStart:
			return m.start(ctx, ev)
		case CommandCancel:
			return m.cancel(ctx, ev.UserID)
		}
	}

	s, ok := m.sessions.get(ev.UserID)
	if !ok {
		return m.say(ctx, ev.UserID, msgNoSession)
	}

	switch {
	case ev.Kind == EventCommand:
		if s.State == StateReview {
			return m.send(ctx, s.UserID, reviewMessage(s))
		}
		return m.say(ctx, s.UserID, promptFor(s.State))
	case s.State == StateReview:
		return m.review(ctx, s, ev)
	case ev.Kind == EventAction:
		return m.say(ctx, s.UserID, msgUseReviewOnly)
	case s.State == StateAccessCheck:
		return m.checkAccess(ctx, s, ev.Text)
	case isCollection(s.State):
		return m.collect(ctx, s, ev.Text)
	}
	m.log.Warn("event in unexpected state", zap.Int64("user_id", s.UserID), zap.String("state", string(s.State)))
	return nil
}

func (m *Machine) start(ctx context.Context, ev Event) error {
	if old, ok := m.sessions.get(ev.UserID); ok {
		m.log.Info("replacing in-flight session", zap.Int64("user_id", ev.UserID), zap.String("state", string(old.State)))
	}
	s := &Session{UserID: ev.UserID, Username: ev.Username, State: StateEntry}
	m.advance(s, StateAccessCheck)
	m.sessions.put(s)
	return m.say(ctx, s.UserID, msgWelcome)
}

func (m *Machine) cancel(ctx context.Context, userID int64) error {
	s, ok := m.sessions.get(userID)
	if !ok {
		return m.say(ctx, userID, msgNothingPending)
	}
	m.advance(s, StateCancelled)
	m.sessions.drop(userID)
	m.log.Info("session cancelled", zap.Int64("user_id", userID))
	return m.say(ctx, userID, msgCancelled)
}

func (m *Machine) checkAccess(ctx context.Context, s *Session, text string) error {
	v, err := m.d.Gate.Verify(ctx, text)
	switch {
	case err != nil:
		m.obs.ObserveAccess("unavailable")
		if !errors.Is(err, services.ErrGateUnavailable) {
			m.log.Error("access check failed", zap.Int64("user_id", s.UserID), zap.Error(err))
		}
		return m.say(ctx, s.UserID, msgAccessUnavailable)
	case !v.Granted:
		m.obs.ObserveAccess("denied")
		return m.say(ctx, s.UserID, msgAccessDenied)
	}
	if v.Fallback {
		m.obs.ObserveAccess("fallback")
	} else {
		m.obs.ObserveAccess("granted")
	}
	s.AccessCode = strings.TrimSpace(text)
	m.advance(s, StateTopFive)
	m.sessions.put(s)
	return m.say(ctx, s.UserID, msgAccessGranted)
}

// collect applies text to the field of the current state. A rejection keeps
// the state; success advances, or returns to review when editing.
func (m *Machine) collect(ctx context.Context, s *Session, text string) error {
	ack, reject := m.apply(s, text)
	if reject != "" {
		return m.say(ctx, s.UserID, reject)
	}
	next := nextAfter(s.State)
	if s.editing || next == StateReview {
		s.editing = false
		m.advance(s, StateReview)
		m.sessions.put(s)
		return m.send(ctx, s.UserID, reviewMessage(s))
	}
	m.advance(s, next)
	m.sessions.put(s)
	return m.say(ctx, s.UserID, ack+"\n\n"+promptFor(next))
}

// apply stores the field for s.State and returns the acknowledgement, or a
// non-empty rejection reason.
func (m *Machine) apply(s *Session, text string) (ack, reject string) {
	switch s.State {
	case StateTopFive:
		values := services.ParseValueList(text)
		if len(values) < 5 {
			return "", msgTopFiveTooFew
		}
		s.TopValues = values[:5]
		s.TopCategories = m.d.Categories.PrimaryCategories(s.TopValues)
		return topFiveEcho(s.TopValues), ""
	case StateNextFive:
		values := services.ParseValueList(text)
		if len(values) == 0 {
			return "", msgNextFiveNone
		}
		if len(values) > 5 {
			values = values[:5]
		}
		s.NextValues = values
		return nextFiveEcho(s.NextValues), ""
	case StateAge:
		age, err := services.ValidateAge(text)
		if err != nil {
			return "", err.Error()
		}
		s.Age = age
	case StateCountry:
		country, err := services.ValidateCountry(text)
		if err != nil {
			return "", err.Error()
		}
		s.Country = country
	case StateOccupation:
		occupation, err := services.ValidateOccupation(text)
		if err != nil {
			return "", err.Error()
		}
		s.Occupation = occupation
	}
	return msgThanks, ""
}

func (m *Machine) review(ctx context.Context, s *Session, ev Event) error {
	if ev.Kind != EventAction {
		return m.send(ctx, s.UserID, reviewMessage(s))
	}
	if ev.Text == ActionConfirm {
		return m.confirm(ctx, s)
	}
	target, ok := editTargets[ev.Text]
	if !ok {
		m.log.Debug("unknown review action", zap.Int64("user_id", s.UserID), zap.String("action", ev.Text))
		return m.send(ctx, s.UserID, reviewMessage(s))
	}
	s.editing = true
	m.advance(s, target)
	m.sessions.put(s)
	return m.say(ctx, s.UserID, editPrompts[target])
}

// confirm persists the submission, generates and delivers the report. Every
// path ends the session. The user's lock is held throughout, so later events
// from the same user wait for the outcome.
func (m *Machine) confirm(ctx context.Context, s *Session) error {
	m.advance(s, StateGenerating)
	m.sessions.put(s)
	if err := m.say(ctx, s.UserID, msgGenerating); err != nil {
		m.log.Warn("generating notice not sent", zap.Int64("user_id", s.UserID), zap.Error(err))
	}

	sub := s.Submission()
	id, err := m.d.Submissions.UpsertSubmission(ctx, sub)
	if err != nil {
		m.log.Error("store submission failed", zap.Int64("user_id", s.UserID), zap.Error(err))
		m.finish(s)
		return m.settle(ctx, s.UserID, Message{Text: msgStoreFailed})
	}
	sub.ID = id

	report := m.d.Reports.Assemble(ctx, sub)
	if err := m.d.Submissions.AppendReport(ctx, report); err != nil {
		m.log.Error("store report failed", zap.Int64("user_id", s.UserID), zap.String("report_id", report.ID), zap.Error(err))
	}

	if err := m.d.Delivery.Deliver(ctx, sub, report); err != nil {
		m.log.Error("deliver report failed", zap.Int64("user_id", s.UserID), zap.String("report_id", report.ID), zap.Error(err))
		m.finish(s)
		return m.settle(ctx, s.UserID, Message{Text: msgGenerateFailed})
	}
	m.obs.ObserveDelivered()
	m.finish(s)

	return m.settle(ctx, s.UserID,
		Message{Text: readyMessage(m.d.SectionTitles, m.shareLink(report.ID))},
		Message{Text: msgClosing})
}

// settle sends the closing messages of a confirm. They go out even when ctx
// was cancelled during generation, bounded by feedbackTimeout.
func (m *Machine) settle(ctx context.Context, userID int64, msgs ...Message) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), feedbackTimeout)
	defer cancel()
	for _, msg := range msgs {
		if err := m.send(ctx, userID, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) shareLink(reportID string) string {
	if m.d.Links == nil {
		return ""
	}
	link, err := m.d.Links.ShareURL(reportID)
	if err != nil {
		m.log.Warn("share link not issued", zap.String("report_id", reportID), zap.Error(err))
		return ""
	}
	return link
}

func (m *Machine) finish(s *Session) {
	m.advance(s, StateDone)
	m.sessions.drop(s.UserID)
}

func (m *Machine) advance(s *Session, to State) {
	m.obs.ObserveTransition(string(s.State), string(to))
	m.log.Debug("transition", zap.Int64("user_id", s.UserID), zap.String("from", string(s.State)), zap.String("to", string(to)))
	s.State = to
}

func (m *Machine) say(ctx context.Context, userID int64, text string) error {
	return m.send(ctx, userID, Message{Text: text})
}

func (m *Machine) send(ctx context.Context, userID int64, msg Message) error {
	return m.d.Outbox.Send(ctx, userID, msg)
}
