package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/valuesreport/internal/services"
)

type sentMessage struct {
	userID int64
	msg    Message
}

type recordingOutbox struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (o *recordingOutbox) Send(ctx context.Context, userID int64, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentMessage{userID: userID, msg: msg})
	return nil
}

func (o *recordingOutbox) last(t *testing.T) Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1].msg
}

func (o *recordingOutbox) texts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.sent))
	for i, s := range o.sent {
		out[i] = s.msg.Text
	}
	return out
}

type stubGate struct {
	mu    sync.Mutex
	codes map[string]int
	err   error
}

func (g *stubGate) Verify(_ context.Context, code string) (services.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return services.Verification{}, g.err
	}
	n := g.codes[strings.TrimSpace(code)]
	if n <= 0 {
		return services.Verification{}, nil
	}
	g.codes[strings.TrimSpace(code)] = n - 1
	return services.Verification{Granted: true, Remaining: n - 1}, nil
}

type stubSubmissions struct {
	mu        sync.Mutex
	subs      []*services.Submission
	reports   []*services.Report
	upsertErr error
	appendErr error
}

func (s *stubSubmissions) UpsertSubmission(_ context.Context, sub *services.Submission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return "", s.upsertErr
	}
	s.subs = append(s.subs, sub)
	return fmt.Sprintf("sub-%d", len(s.subs)), nil
}

func (s *stubSubmissions) AppendReport(_ context.Context, r *services.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.reports = append(s.reports, r)
	return nil
}

type countingGenerator struct {
	mu         sync.Mutex
	prompts    []string
	onGenerate func()
}

func (g *countingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	hook := g.onGenerate
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "Some **insight**.", nil
}

type recordingDelivery struct {
	mu        sync.Mutex
	delivered []*services.Report
	err       error
}

func (d *recordingDelivery) Deliver(ctx context.Context, sub *services.Submission, r *services.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, r)
	return nil
}

type staticLinker struct{}

func (staticLinker) ShareURL(id string) (string, error) { return "https://example.test/r/" + id, nil }

type harness struct {
	m        *Machine
	out      *recordingOutbox
	gate     *stubGate
	subs     *stubSubmissions
	gen      *countingGenerator
	delivery *recordingDelivery
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	catalog, err := services.DefaultCatalog()
	require.NoError(t, err)
	sections, err := services.DefaultSections()
	require.NoError(t, err)

	h := &harness{
		out:      &recordingOutbox{},
		gate:     &stubGate{codes: map[string]int{"TEST123": 10, "ONCE": 1}},
		subs:     &stubSubmissions{},
		gen:      &countingGenerator{},
		delivery: &recordingDelivery{},
	}
	assembler := services.NewReportAssembler(h.gen, catalog, sections, nil)
	titles := make([]string, 0, len(sections))
	for _, s := range sections {
		titles = append(titles, s.Title)
	}
	h.m = NewMachine(Deps{
		Gate:          h.gate,
		Categories:    catalog,
		Submissions:   h.subs,
		Reports:       assembler,
		Delivery:      h.delivery,
		Outbox:        h.out,
		Links:         staticLinker{},
		SectionTitles: titles,
	})
	return h
}

const user int64 = 42

func (h *harness) text(t *testing.T, s string) {
	t.Helper()
	require.NoError(t, h.m.Handle(context.Background(), TextEvent(user, s)))
}

func (h *harness) action(t *testing.T, a string) {
	t.Helper()
	require.NoError(t, h.m.Handle(context.Background(), ActionEvent(user, a)))
}

func (h *harness) command(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, h.m.Handle(context.Background(), CommandEvent(user, "ada", name)))
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	s, ok := h.m.Session(user)
	require.True(t, ok, "no live session")
	return s.State
}

// toReview drives a fresh session through every field.
func (h *harness) toReview(t *testing.T) {
	t.Helper()
	h.command(t, "start")
	h.text(t, "TEST123")
	h.text(t, "Courage, Growth, Wisdom, Purpose, Curiosity")
	h.text(t, "Family, Health, Creativity, Respect, Peace")
	h.text(t, "30")
	h.text(t, "canada")
	h.text(t, "nurse")
	require.Equal(t, StateReview, h.state(t))
}

func TestEndToEndReport(t *testing.T) {
	h := newHarness(t)
	h.command(t, "start")
	assert.Equal(t, StateAccessCheck, h.state(t))
	assert.Contains(t, h.out.last(t).Text, "Please enter your access code")

	h.text(t, " TEST123 ")
	assert.Equal(t, StateTopFive, h.state(t))
	assert.Contains(t, h.out.last(t).Text, "Access code verified")

	h.text(t, "Courage, Growth, Wisdom, Purpose, Curiosity")
	assert.Equal(t, StateNextFive, h.state(t))
	assert.Contains(t, h.out.last(t).Text, "1. Courage\n2. Growth\n3. Wisdom\n4. Purpose\n5. Curiosity")

	h.text(t, "Family, Health, Creativity, Respect, Peace")
	assert.Equal(t, StateAge, h.state(t))
	h.text(t, "30")
	assert.Equal(t, StateCountry, h.state(t))
	h.text(t, "canada")
	assert.Equal(t, StateOccupation, h.state(t))
	h.text(t, "nurse")
	assert.Equal(t, StateReview, h.state(t))

	review := h.out.last(t)
	for _, want := range []string{
		"1. Courage\n", "5. Curiosity\n",
		"Values 6-10:\nFamily, Health, Creativity, Respect, Peace",
		"Age: 30", "Country: Canada", "Occupation: Nurse",
	} {
		assert.Contains(t, review.Text, want)
	}
	require.Len(t, review.Buttons, 3)
	assert.Len(t, review.Buttons[0], 2)
	assert.Len(t, review.Buttons[1], 3)
	assert.Equal(t, ActionConfirm, review.Buttons[2][0].Action)

	s, _ := h.m.Session(user)
	assert.Equal(t, "TEST123", s.AccessCode)
	assert.Len(t, s.TopCategories, 5)

	h.action(t, ActionConfirm)

	assert.Len(t, h.gen.prompts, 4)
	require.Len(t, h.subs.subs, 1)
	sub := h.subs.subs[0]
	assert.Equal(t, "Canada", sub.Country)
	assert.Equal(t, "Nurse", sub.Occupation)
	assert.Equal(t, "ada", sub.Username)
	require.Len(t, h.subs.reports, 1)
	assert.Equal(t, "sub-1", h.subs.reports[0].SubmissionID)
	require.Len(t, h.delivery.delivered, 1)

	texts := h.out.texts()
	ready := texts[len(texts)-2]
	assert.Contains(t, ready, "Your Values report is ready")
	assert.Contains(t, ready, "Are my values in parallel or in tension?")
	assert.Contains(t, ready, "https://example.test/r/"+h.subs.reports[0].ID)
	assert.Equal(t, msgClosing, texts[len(texts)-1])

	_, live := h.m.Session(user)
	assert.False(t, live)
	assert.Equal(t, 0, h.m.Active())
}

func TestCancelDiscardsSession(t *testing.T) {
	for _, at := range []State{StateAccessCheck, StateTopFive, StateNextFive, StateAge, StateCountry, StateOccupation, StateReview} {
		t.Run(string(at), func(t *testing.T) {
			h := newHarness(t)
			h.command(t, "start")
			inputs := []string{"TEST123", "Courage, Growth, Wisdom, Purpose, Curiosity", "Family", "30", "canada", "nurse"}
			for _, in := range inputs {
				if h.state(t) == at {
					break
				}
				h.text(t, in)
			}
			require.Equal(t, at, h.state(t))

			h.command(t, "cancel")
			assert.Equal(t, msgCancelled, h.out.last(t).Text)
			_, live := h.m.Session(user)
			assert.False(t, live)

			h.command(t, "start")
			s, ok := h.m.Session(user)
			require.True(t, ok)
			assert.Equal(t, Session{UserID: user, Username: "ada", State: StateAccessCheck}, s)
			assert.Empty(t, h.subs.subs)
		})
	}
}

func TestCancelWithoutSession(t *testing.T) {
	h := newHarness(t)
	h.command(t, "cancel")
	assert.Equal(t, msgNothingPending, h.out.last(t).Text)
}

func TestEditAgeReturnsToReview(t *testing.T) {
	h := newHarness(t)
	h.toReview(t)

	h.action(t, ActionEditAge)
	assert.Equal(t, StateAge, h.state(t))
	assert.Contains(t, h.out.last(t).Text, "Let's update your age")

	h.text(t, "12")
	assert.Equal(t, StateAge, h.state(t))
	assert.Equal(t, "Please enter a valid age between 18 and 120.", h.out.last(t).Text)

	h.text(t, "45")
	assert.Equal(t, StateReview, h.state(t))
	review := h.out.last(t).Text
	assert.Contains(t, review, "Age: 45")
	assert.Contains(t, review, "Country: Canada")
	assert.Contains(t, review, "Occupation: Nurse")
	assert.Contains(t, review, "1. Courage")

	s, _ := h.m.Session(user)
	assert.False(t, s.editing)
}

func TestEditTopFiveRecomputesCategories(t *testing.T) {
	h := newHarness(t)
	h.toReview(t)
	before, _ := h.m.Session(user)

	h.action(t, ActionEditTopFive)
	h.text(t, "Family, Health, Peace, Respect, Creativity")
	require.Equal(t, StateReview, h.state(t))

	after, _ := h.m.Session(user)
	assert.Equal(t, []string{"Family", "Health", "Peace", "Respect", "Creativity"}, after.TopValues)
	assert.NotEqual(t, before.TopCategories, after.TopCategories)
	assert.Equal(t, before.NextValues, after.NextValues)
}

func TestAccessDeniedStays(t *testing.T) {
	h := newHarness(t)
	h.command(t, "start")
	h.text(t, "NOPE")
	assert.Equal(t, StateAccessCheck, h.state(t))
	assert.Equal(t, msgAccessDenied, h.out.last(t).Text)

	h.text(t, "ONCE")
	assert.Equal(t, StateTopFive, h.state(t))
}

func TestGateUnavailableStays(t *testing.T) {
	h := newHarness(t)
	h.gate.err = fmt.Errorf("%w: connection refused", services.ErrGateUnavailable)
	h.command(t, "start")
	h.text(t, "TEST123")
	assert.Equal(t, StateAccessCheck, h.state(t))
	assert.Equal(t, msgAccessUnavailable, h.out.last(t).Text)
}

func TestTopFiveNeedsFive(t *testing.T) {
	h := newHarness(t)
	h.command(t, "start")
	h.text(t, "TEST123")
	h.text(t, "Courage, Growth")
	assert.Equal(t, StateTopFive, h.state(t))
	assert.Equal(t, msgTopFiveTooFew, h.out.last(t).Text)

	h.text(t, "Qwzx1, Qwzx2, Qwzx3, Qwzx4, Qwzx5, Qwzx6")
	s, _ := h.m.Session(user)
	assert.Equal(t, []string{"Qwzx1", "Qwzx2", "Qwzx3", "Qwzx4", "Qwzx5"}, s.TopValues)
	assert.Equal(t, []string{"Unknown", "Unknown", "Unknown", "Unknown", "Unknown"}, s.TopCategories)
}

func TestNextFiveKeepsAtMostFive(t *testing.T) {
	h := newHarness(t)
	h.command(t, "start")
	h.text(t, "TEST123")
	h.text(t, "Courage, Growth, Wisdom, Purpose, Curiosity")
	h.text(t, "Family, Health, Creativity, Respect, Peace, Honesty")
	s, _ := h.m.Session(user)
	assert.Equal(t, []string{"Family", "Health", "Creativity", "Respect", "Peace"}, s.NextValues)
	assert.Equal(t, StateAge, s.State)
}

func TestPersistFailureEndsSession(t *testing.T) {
	h := newHarness(t)
	h.subs.upsertErr = errors.New("disk full")
	h.toReview(t)
	h.action(t, ActionConfirm)

	assert.Equal(t, msgStoreFailed, h.out.last(t).Text)
	assert.Empty(t, h.gen.prompts)
	assert.Empty(t, h.delivery.delivered)
	_, live := h.m.Session(user)
	assert.False(t, live)
}

func TestDeliveryFailureEndsSession(t *testing.T) {
	h := newHarness(t)
	h.delivery.err = errors.New("render: font missing")
	h.toReview(t)
	h.action(t, ActionConfirm)

	assert.Equal(t, msgGenerateFailed, h.out.last(t).Text)
	_, live := h.m.Session(user)
	assert.False(t, live)
}

func TestConfirmCancelledDuringGenerationStillAnswers(t *testing.T) {
	h := newHarness(t)
	h.toReview(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.gen.onGenerate = cancel
	require.NoError(t, h.m.Handle(ctx, ActionEvent(user, ActionConfirm)))

	assert.Empty(t, h.delivery.delivered)
	assert.Equal(t, msgGenerateFailed, h.out.last(t).Text)
	texts := h.out.texts()
	assert.Equal(t, msgGenerating, texts[len(texts)-2])
	_, live := h.m.Session(user)
	assert.False(t, live)
}

func TestInputDuringConfirmWaitsForOutcome(t *testing.T) {
	h := newHarness(t)
	h.toReview(t)

	var (
		once sync.Once
		done = make(chan error, 1)
	)
	h.gen.onGenerate = func() {
		once.Do(func() {
			started := make(chan struct{})
			go func() {
				close(started)
				done <- h.m.Handle(context.Background(), TextEvent(user, "hello?"))
			}()
			<-started
			time.Sleep(20 * time.Millisecond)
		})
	}
	h.action(t, ActionConfirm)
	require.NoError(t, <-done)

	texts := h.out.texts()
	require.GreaterOrEqual(t, len(texts), 2)
	assert.Equal(t, msgClosing, texts[len(texts)-2])
	assert.Equal(t, msgNoSession, texts[len(texts)-1])
}

func TestAppendReportFailureStillDelivers(t *testing.T) {
	h := newHarness(t)
	h.subs.appendErr = errors.New("constraint failed")
	h.toReview(t)
	h.action(t, ActionConfirm)

	assert.Len(t, h.delivery.delivered, 1)
	assert.Equal(t, msgClosing, h.out.last(t).Text)
}

func TestStrayInputs(t *testing.T) {
	h := newHarness(t)
	h.text(t, "hello")
	assert.Equal(t, msgNoSession, h.out.last(t).Text)

	h.command(t, "start")
	h.text(t, "TEST123")
	h.action(t, ActionConfirm)
	assert.Equal(t, msgUseReviewOnly, h.out.last(t).Text)
	assert.Equal(t, StateTopFive, h.state(t))

	h.command(t, "help")
	assert.Equal(t, promptTopFive, h.out.last(t).Text)
}

func TestReviewTextRerenders(t *testing.T) {
	h := newHarness(t)
	h.toReview(t)
	h.text(t, "looks good")
	assert.Equal(t, StateReview, h.state(t))
	assert.Contains(t, h.out.last(t).Text, "Please review your information")
	assert.Len(t, h.out.last(t).Buttons, 3)
}

func TestStartReplacesInFlightSession(t *testing.T) {
	h := newHarness(t)
	h.command(t, "start")
	h.text(t, "TEST123")
	h.text(t, "Courage, Growth, Wisdom, Purpose, Curiosity")

	h.command(t, "start")
	s, ok := h.m.Session(user)
	require.True(t, ok)
	assert.Equal(t, StateAccessCheck, s.State)
	assert.Empty(t, s.TopValues)
	assert.Empty(t, s.AccessCode)
}

func TestUsersAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.gate.codes["TEST123"] = 100
	ctx := context.Background()

	var wg sync.WaitGroup
	for id := int64(1); id <= 20; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.m.Handle(ctx, CommandEvent(id, "", "start")))
			assert.NoError(t, h.m.Handle(ctx, TextEvent(id, "TEST123")))
			assert.NoError(t, h.m.Handle(ctx, TextEvent(id, "Courage, Growth, Wisdom, Purpose, Curiosity")))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, h.m.Active())
	for id := int64(1); id <= 20; id++ {
		s, ok := h.m.Session(id)
		require.True(t, ok)
		assert.Equal(t, StateNextFive, s.State)
	}
	assert.Equal(t, 80, h.gate.codes["TEST123"])
}
