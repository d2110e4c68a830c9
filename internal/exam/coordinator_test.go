package exam

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"proctora-backend/internal/models"
)

// ─── Fakes ───

type fakeStore struct {
	mu           sync.Mutex
	sessions     map[string]*models.Session
	participants map[uuid.UUID]*models.Participant
	incidents    []*models.Incident
	messages     []*models.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:     make(map[string]*models.Session),
		participants: make(map[uuid.UUID]*models.Participant),
	}
}

func (f *fakeStore) CreateSession(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *s
	f.sessions[s.GroupCode] = &copied
	return nil
}

func (f *fakeStore) UpdateSession(_ context.Context, s *models.Session) error {
	return f.CreateSession(context.Background(), s)
}

func (f *fakeStore) SessionByGroupCode(_ context.Context, code string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[code]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStore) GroupCodeExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[code]
	return ok, nil
}

func (f *fakeStore) CreateParticipant(_ context.Context, p *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *p
	f.participants[p.ID] = &copied
	return nil
}

func (f *fakeStore) UpdateParticipant(_ context.Context, p *models.Participant) error {
	return f.CreateParticipant(context.Background(), p)
}

func (f *fakeStore) ParticipantsBySession(_ context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Participant
	for _, p := range f.participants {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateIncident(_ context.Context, in *models.Incident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *in
	f.incidents = append(f.incidents, &copied)
	return nil
}

func (f *fakeStore) CreateMessage(_ context.Context, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *m
	f.messages = append(f.messages, &copied)
	return nil
}

type sentEvent struct {
	ConnID    string
	GroupCode string
	Event     models.Event
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeNotifier) SendToConnection(connID string, ev models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{ConnID: connID, Event: ev})
}

func (f *fakeNotifier) SendToSession(groupCode string, ev models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{GroupCode: groupCode, Event: ev})
}

func (f *fakeNotifier) JoinGroup(groupCode, connID string) {}
func (f *fakeNotifier) LeaveGroup(connID string)           {}

func (f *fakeNotifier) eventsOfType(eventType string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.sent {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAudit) Record(sessionID uuid.UUID, actorType string, actorID uuid.UUID, action string, details interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

// ─── Helpers ───

type testEnv struct {
	coord    *Coordinator
	store    *fakeStore
	notifier *fakeNotifier
	audit    *fakeAudit
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	return &testEnv{
		coord:    NewCoordinator(NewCache(store), NewRegistry(), store, notifier, audit),
		store:    store,
		notifier: notifier,
		audit:    audit,
	}
}

func (e *testEnv) createSession(t *testing.T, supervisorID uuid.UUID) string {
	t.Helper()
	session, err := e.coord.CreateSession(context.Background(), "sup-conn", supervisorID, uuid.New())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session.GroupCode
}

func (e *testEnv) joinLearner(t *testing.T, code string, learnerID uuid.UUID, connID string) *models.Participant {
	t.Helper()
	p, err := e.coord.JoinExam(context.Background(), connID, code, learnerID, "Learner")
	if err != nil {
		t.Fatalf("JoinExam failed: %v", err)
	}
	return p
}

// ─── Session creation ───

func TestCreateSessionSeedsCacheAndRegistry(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()

	code := env.createSession(t, supervisorID)

	if len(code) != 6 {
		t.Fatalf("expected 6-char group code, got %q", code)
	}
	if !env.coord.cache.Contains(code) {
		t.Error("expected session in cache")
	}
	ident, ok := env.coord.registry.Lookup("sup-conn")
	if !ok || ident.Kind != IdentitySupervisor || ident.GroupCode != code {
		t.Errorf("expected supervisor identity for sup-conn, got %+v", ident)
	}
	if s, _ := env.store.SessionByGroupCode(context.Background(), code); s == nil {
		t.Error("expected session persisted")
	}
}

func TestCreateSessionRequiresAuthentication(t *testing.T) {
	env := newTestEnv()

	_, err := env.coord.CreateSession(context.Background(), "conn", uuid.Nil, uuid.New())
	if _, ok := err.(*UnauthorizedError); !ok {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestSupervisorOperationsRejectOtherUsers(t *testing.T) {
	env := newTestEnv()
	code := env.createSession(t, uuid.New())

	_, err := env.coord.StartExam(context.Background(), code, uuid.New(), 60, nil)
	if _, ok := err.(*ForbiddenError); !ok {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}

	_, err = env.coord.StartExam(context.Background(), "ZZZZZZ", uuid.New(), 60, nil)
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected NotFoundError for unknown code, got %v", err)
	}
}

// ─── StartExam ───

func TestStartExamIncludesAdditionalTime(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")
	p.AdditionalTimeMinutes = 5

	count, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil)
	if err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 participant started, got %d", count)
	}
	if p.RemainingTimeSeconds != 3900 {
		t.Errorf("expected 3900 remaining seconds, got %d", p.RemainingTimeSeconds)
	}
	if p.Status != models.ParticipantInExam {
		t.Errorf("expected status in_exam, got %s", p.Status)
	}
	if p.StartedAt == nil {
		t.Error("expected started_at stamped")
	}

	if got := env.notifier.eventsOfType(models.EventExamStarted); len(got) != 1 {
		t.Errorf("expected 1 ExamStarted event, got %d", len(got))
	}
	if got := env.notifier.eventsOfType(models.EventSessionStateChanged); len(got) != 1 {
		t.Errorf("expected session snapshot broadcast, got %d", len(got))
	}
}

func TestStartExamActivatesSessionOnce(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	env.joinLearner(t, code, uuid.New(), "conn-1")

	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 30, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	state, _ := env.coord.cache.Get(context.Background(), code)
	if state.Session.Status != models.SessionActive {
		t.Fatalf("expected active session, got %s", state.Session.Status)
	}
	firstStart := state.Session.StartedAt

	// A later join plus second start must not restamp the session.
	env.joinLearner(t, code, uuid.New(), "conn-2")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 30, nil); err != nil {
		t.Fatalf("second StartExam failed: %v", err)
	}
	if state.Session.StartedAt != firstStart {
		t.Error("expected session started_at unchanged on second start")
	}
}

func TestStartExamFiltersByLearnerAndStatus(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	first := uuid.New()
	second := uuid.New()
	env.joinLearner(t, code, first, "conn-1")
	p2 := env.joinLearner(t, code, second, "conn-2")

	count, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, []uuid.UUID{first})
	if err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 started, got %d", count)
	}
	if p2.Status != models.ParticipantConnected {
		t.Errorf("expected unselected learner untouched, got %s", p2.Status)
	}

	// Already in_exam participants are not restarted.
	count, err = env.coord.StartExam(context.Background(), code, supervisorID, 60, []uuid.UUID{first})
	if err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 started on repeat, got %d", count)
	}
}

func TestStartExamValidatesDuration(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)

	_, err := env.coord.StartExam(context.Background(), code, supervisorID, 0, nil)
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// ─── Pause / Resume ───

func TestPauseAndResumeFlipSessionStatus(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	env.joinLearner(t, code, uuid.New(), "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	count, err := env.coord.PauseExam(context.Background(), code, supervisorID, nil)
	if err != nil || count != 1 {
		t.Fatalf("PauseExam = (%d, %v)", count, err)
	}
	state, _ := env.coord.cache.Get(context.Background(), code)
	if state.Session.Status != models.SessionPaused {
		t.Errorf("expected paused session, got %s", state.Session.Status)
	}

	count, err = env.coord.ResumeExam(context.Background(), code, supervisorID, nil)
	if err != nil || count != 1 {
		t.Fatalf("ResumeExam = (%d, %v)", count, err)
	}
	if state.Session.Status != models.SessionActive {
		t.Errorf("expected active session, got %s", state.Session.Status)
	}
}

func TestPerLearnerPauseKeepsSessionActive(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	other := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")
	env.joinLearner(t, code, other, "conn-2")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	before := p.RemainingTimeSeconds

	count, err := env.coord.PauseExam(context.Background(), code, supervisorID, &learnerID)
	if err != nil || count != 1 {
		t.Fatalf("PauseExam = (%d, %v)", count, err)
	}
	if p.Status != models.ParticipantPaused {
		t.Errorf("expected paused participant, got %s", p.Status)
	}
	if p.RemainingTimeSeconds != before {
		t.Errorf("pause must not touch remaining time: %d != %d", p.RemainingTimeSeconds, before)
	}

	state, _ := env.coord.cache.Get(context.Background(), code)
	if state.Session.Status != models.SessionActive {
		t.Errorf("per-learner pause must not pause the session, got %s", state.Session.Status)
	}
}

// ─── EndExam ───

func TestEndExamEndsSessionAndAllParticipants(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)

	inExam := env.joinLearner(t, code, uuid.New(), "conn-1")
	paused := env.joinLearner(t, code, uuid.New(), "conn-2")
	connected := env.joinLearner(t, code, uuid.New(), "conn-3")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, []uuid.UUID{inExam.LearnerID, paused.LearnerID}); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if _, err := env.coord.PauseExam(context.Background(), code, supervisorID, &paused.LearnerID); err != nil {
		t.Fatalf("PauseExam failed: %v", err)
	}

	count, err := env.coord.EndExam(context.Background(), code, supervisorID, nil)
	if err != nil {
		t.Fatalf("EndExam failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 participants ended, got %d", count)
	}
	for _, p := range []*models.Participant{inExam, paused, connected} {
		if p.Status != models.ParticipantEnded {
			t.Errorf("expected ended, got %s", p.Status)
		}
	}

	state, _ := env.coord.cache.Get(context.Background(), code)
	if state.Session.Status != models.SessionEnded {
		t.Errorf("expected ended session, got %s", state.Session.Status)
	}
	if state.Session.EndedAt == nil {
		t.Error("expected ended_at stamped")
	}
}

func TestEndExamRepeatKeepsEndedAt(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	env.joinLearner(t, code, uuid.New(), "conn-1")

	if _, err := env.coord.EndExam(context.Background(), code, supervisorID, nil); err != nil {
		t.Fatalf("EndExam failed: %v", err)
	}
	state, _ := env.coord.cache.Get(context.Background(), code)
	firstEnd := state.Session.EndedAt
	if firstEnd == nil {
		t.Fatal("expected ended_at stamped")
	}

	if _, err := env.coord.EndExam(context.Background(), code, supervisorID, nil); err != nil {
		t.Fatalf("second EndExam failed: %v", err)
	}
	if state.Session.EndedAt != firstEnd {
		t.Error("repeated end must not move ended_at")
	}
}

func TestEndExamSkipsTerminalParticipants(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := env.coord.SubmitExam(context.Background(), code, learnerID); err != nil {
		t.Fatalf("SubmitExam failed: %v", err)
	}

	count, err := env.coord.EndExam(context.Background(), code, supervisorID, nil)
	if err != nil {
		t.Fatalf("EndExam failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 transitions, got %d", count)
	}
	if p.Status != models.ParticipantSubmitted {
		t.Errorf("submitted must stay submitted, got %s", p.Status)
	}
}

// ─── AddTime ───

func TestAddTimeAccumulates(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	p.RemainingTimeSeconds = 100
	p.AdditionalTimeMinutes = 0

	count, err := env.coord.AddTime(context.Background(), code, supervisorID, 10, nil)
	if err != nil || count != 1 {
		t.Fatalf("AddTime = (%d, %v)", count, err)
	}
	if p.RemainingTimeSeconds != 700 {
		t.Errorf("expected 700 remaining seconds, got %d", p.RemainingTimeSeconds)
	}
	if p.AdditionalTimeMinutes != 10 {
		t.Errorf("expected 10 additional minutes, got %d", p.AdditionalTimeMinutes)
	}

	events := env.notifier.eventsOfType(models.EventTimeAdded)
	if len(events) != 1 {
		t.Fatalf("expected 1 TimeAdded event, got %d", len(events))
	}
	payload := events[0].Event.Payload.(models.TimeAddedPayload)
	if payload.NewRemainingSeconds != 700 {
		t.Errorf("expected payload 700, got %d", payload.NewRemainingSeconds)
	}
}

func TestAddTimeSkipsConnectedParticipants(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	env.joinLearner(t, code, uuid.New(), "conn-1")

	count, err := env.coord.AddTime(context.Background(), code, supervisorID, 10, nil)
	if err != nil {
		t.Fatalf("AddTime failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no grants before exam start, got %d", count)
	}
}

// ─── Pause requests ───

func TestPauseRequestLifecycle(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")

	// Only valid from in_exam.
	err := env.coord.RequestPause(context.Background(), code, learnerID, "bathroom")
	if _, ok := err.(*InvalidStateError); !ok {
		t.Fatalf("expected InvalidStateError before exam, got %v", err)
	}

	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := env.coord.RequestPause(context.Background(), code, learnerID, "bathroom"); err != nil {
		t.Fatalf("RequestPause failed: %v", err)
	}
	if p.Status != models.ParticipantPauseRequested {
		t.Fatalf("expected pause_requested, got %s", p.Status)
	}
	if got := env.notifier.eventsOfType(models.EventPauseRequested); len(got) != 1 {
		t.Errorf("expected supervisor notified, got %d events", len(got))
	}

	if err := env.coord.ApprovePause(context.Background(), code, supervisorID, learnerID); err != nil {
		t.Fatalf("ApprovePause failed: %v", err)
	}
	if p.Status != models.ParticipantPaused {
		t.Fatalf("expected paused after approval, got %s", p.Status)
	}

	// Approving again must fail: no pending request.
	err = env.coord.ApprovePause(context.Background(), code, supervisorID, learnerID)
	if _, ok := err.(*InvalidStateError); !ok {
		t.Fatalf("expected InvalidStateError on double approve, got %v", err)
	}
}

func TestDenyPauseRestoresInExam(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := env.coord.RequestPause(context.Background(), code, learnerID, "break"); err != nil {
		t.Fatalf("RequestPause failed: %v", err)
	}

	if err := env.coord.DenyPause(context.Background(), code, supervisorID, learnerID, "almost done"); err != nil {
		t.Fatalf("DenyPause failed: %v", err)
	}
	if p.Status != models.ParticipantInExam {
		t.Fatalf("expected in_exam after denial, got %s", p.Status)
	}

	events := env.notifier.eventsOfType(models.EventPauseDenied)
	if len(events) != 1 {
		t.Fatalf("expected PauseDenied event, got %d", len(events))
	}
	payload := events[0].Event.Payload.(models.PauseDeniedPayload)
	if payload.Reason != "almost done" {
		t.Errorf("expected denial reason forwarded, got %q", payload.Reason)
	}
}

// ─── Heartbeat ───

func TestHeartbeatUpdatesRemainingTime(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	if err := env.coord.Heartbeat(context.Background(), code, learnerID, 1200); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if p.RemainingTimeSeconds != 1200 {
		t.Errorf("expected client-reported 1200, got %d", p.RemainingTimeSeconds)
	}
	if p.LastHeartbeat == nil {
		t.Error("expected last heartbeat stamped")
	}
	if p.Status != models.ParticipantInExam {
		t.Errorf("positive heartbeat must not change status, got %s", p.Status)
	}
}

func TestHeartbeatZeroExpiresExactlyOnce(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	if err := env.coord.Heartbeat(context.Background(), code, learnerID, 0); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if p.Status != models.ParticipantTimeExpired {
		t.Fatalf("expected time_expired, got %s", p.Status)
	}
	if got := env.notifier.eventsOfType(models.EventForceSubmit); len(got) != 1 {
		t.Fatalf("expected 1 ForceSubmit, got %d", len(got))
	}

	// Second zero heartbeat is a status no-op.
	if err := env.coord.Heartbeat(context.Background(), code, learnerID, 0); err != nil {
		t.Fatalf("second Heartbeat failed: %v", err)
	}
	if p.Status != models.ParticipantTimeExpired {
		t.Fatalf("expected status unchanged, got %s", p.Status)
	}
	if got := env.notifier.eventsOfType(models.EventForceSubmit); len(got) != 1 {
		t.Errorf("expected no second ForceSubmit, got %d", len(got))
	}
}

// ─── Join / Reconnect ───

func TestJoinExamRejectsEndedSession(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	if _, err := env.coord.EndExam(context.Background(), code, supervisorID, nil); err != nil {
		t.Fatalf("EndExam failed: %v", err)
	}

	_, err := env.coord.JoinExam(context.Background(), "conn-1", code, uuid.New(), "Late")
	if _, ok := err.(*InvalidStateError); !ok {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestJoinExamIsReconnectionForKnownLearner(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()

	first := env.joinLearner(t, code, learnerID, "conn-1")
	second := env.joinLearner(t, code, learnerID, "conn-2")

	if first != second {
		t.Fatal("expected the same participant record on rejoin")
	}
	if second.ConnectionID == nil || *second.ConnectionID != "conn-2" {
		t.Error("expected connection id replaced")
	}

	state, _ := env.coord.cache.Get(context.Background(), code)
	if len(state.Participants()) != 1 {
		t.Errorf("expected a single participant, got %d", len(state.Participants()))
	}
}

func TestRejoinAfterDisconnectRestoresMidExam(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	remaining := p.RemainingTimeSeconds

	env.coord.Disconnect(context.Background(), "conn-1")
	if p.Status != models.ParticipantDisconnected {
		t.Fatalf("expected disconnected, got %s", p.Status)
	}

	env.joinLearner(t, code, learnerID, "conn-2")
	if p.Status != models.ParticipantInExam {
		t.Fatalf("expected in_exam restored, got %s", p.Status)
	}
	if p.RemainingTimeSeconds != remaining {
		t.Errorf("remaining time must survive reconnect: %d != %d", p.RemainingTimeSeconds, remaining)
	}
}

func TestRejoinAfterLobbyDisconnectRestoresConnected(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")

	env.coord.Disconnect(context.Background(), "conn-1")
	env.joinLearner(t, code, learnerID, "conn-2")

	if p.Status != models.ParticipantConnected {
		t.Fatalf("expected connected after lobby rejoin, got %s", p.Status)
	}
}

// ─── Disconnect ───

func TestParticipantDisconnectAppendsIncident(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	env.joinLearner(t, code, learnerID, "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	env.coord.Disconnect(context.Background(), "conn-1")

	env.store.mu.Lock()
	incidents := len(env.store.incidents)
	var prev string
	if incidents > 0 {
		prev = env.store.incidents[0].PreviousStatus
	}
	env.store.mu.Unlock()

	if incidents != 1 {
		t.Fatalf("expected 1 incident, got %d", incidents)
	}
	if prev != models.ParticipantInExam {
		t.Errorf("expected previous status in_exam, got %s", prev)
	}
	if got := env.notifier.eventsOfType(models.EventParticipantStatusChanged); len(got) != 1 {
		t.Errorf("expected supervisor notified of drop, got %d events", len(got))
	}
	if _, ok := env.coord.registry.Lookup("conn-1"); ok {
		t.Error("expected registry entry removed")
	}
}

func TestSupervisorDisconnectNotifiesGroupWithoutEndingSession(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	env.joinLearner(t, code, uuid.New(), "conn-1")

	env.coord.Disconnect(context.Background(), "sup-conn")

	state, _ := env.coord.cache.Get(context.Background(), code)
	if state.Session.SupervisorConnectionID != nil {
		t.Error("expected supervisor connection cleared")
	}
	if state.Session.Status == models.SessionEnded {
		t.Error("supervisor disconnect must not end the session")
	}
	if got := env.notifier.eventsOfType(models.EventSupervisorDisconnected); len(got) != 1 {
		t.Errorf("expected SupervisorDisconnected broadcast, got %d", len(got))
	}
}

func TestStaleDisconnectAfterReconnectIsIgnored(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	// The learner reconnects before the old socket's close fires.
	env.joinLearner(t, code, learnerID, "conn-2")
	env.coord.Disconnect(context.Background(), "conn-1")

	if p.Status != models.ParticipantInExam {
		t.Fatalf("stale disconnect must not drop the participant, got %s", p.Status)
	}
}

// ─── Messaging / chat ───

func TestSendMessagePersistsAndTargets(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	env.joinLearner(t, code, learnerID, "conn-1")

	// Broadcast
	if _, err := env.coord.SendMessage(context.Background(), code, supervisorID, "5 minutes left", nil); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	// Targeted
	msg, err := env.coord.SendMessage(context.Background(), code, supervisorID, "eyes on your own screen", &learnerID)
	if err != nil {
		t.Fatalf("targeted SendMessage failed: %v", err)
	}
	if msg.RecipientID == nil {
		t.Error("expected recipient set on targeted message")
	}

	env.store.mu.Lock()
	stored := len(env.store.messages)
	env.store.mu.Unlock()
	if stored != 2 {
		t.Errorf("expected 2 persisted messages, got %d", stored)
	}

	broadcasts := 0
	direct := 0
	for _, e := range env.notifier.eventsOfType(models.EventMessageReceived) {
		if e.GroupCode != "" {
			broadcasts++
		} else {
			direct++
		}
	}
	if broadcasts != 1 || direct != 1 {
		t.Errorf("expected 1 broadcast and 1 direct delivery, got %d/%d", broadcasts, direct)
	}
}

func TestSendChatMessageRequiresChatEnabled(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	env.joinLearner(t, code, learnerID, "conn-1")

	if err := env.coord.ToggleChat(context.Background(), code, supervisorID, learnerID, false); err != nil {
		t.Fatalf("ToggleChat failed: %v", err)
	}

	_, err := env.coord.SendChatMessage(context.Background(), code, learnerID, "help")
	if _, ok := err.(*ForbiddenError); !ok {
		t.Fatalf("expected ForbiddenError with chat off, got %v", err)
	}

	if err := env.coord.ToggleChat(context.Background(), code, supervisorID, learnerID, true); err != nil {
		t.Fatalf("ToggleChat failed: %v", err)
	}
	msg, err := env.coord.SendChatMessage(context.Background(), code, learnerID, "help")
	if err != nil {
		t.Fatalf("SendChatMessage failed: %v", err)
	}
	if msg.RecipientType == nil || *msg.RecipientType != models.ActorSupervisor {
		t.Error("expected chat message addressed to the supervisor")
	}
}

// ─── Submit / incidents ───

func TestSubmitExamValidStatesOnly(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	p := env.joinLearner(t, code, learnerID, "conn-1")

	err := env.coord.SubmitExam(context.Background(), code, learnerID)
	if _, ok := err.(*InvalidStateError); !ok {
		t.Fatalf("expected InvalidStateError before exam, got %v", err)
	}

	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}
	if err := env.coord.SubmitExam(context.Background(), code, learnerID); err != nil {
		t.Fatalf("SubmitExam failed: %v", err)
	}
	if p.Status != models.ParticipantSubmitted {
		t.Fatalf("expected submitted, got %s", p.Status)
	}
	if p.SubmittedAt == nil {
		t.Error("expected submitted_at stamped")
	}
	if got := env.notifier.eventsOfType(models.EventExamSubmitted); len(got) != 1 {
		t.Errorf("expected supervisor notified, got %d", len(got))
	}
}

func TestReportIncidentCapturesCurrentStatus(t *testing.T) {
	env := newTestEnv()
	supervisorID := uuid.New()
	code := env.createSession(t, supervisorID)
	learnerID := uuid.New()
	env.joinLearner(t, code, learnerID, "conn-1")
	if _, err := env.coord.StartExam(context.Background(), code, supervisorID, 60, nil); err != nil {
		t.Fatalf("StartExam failed: %v", err)
	}

	if err := env.coord.ReportIncident(context.Background(), code, learnerID, "", "screen froze"); err != nil {
		t.Fatalf("ReportIncident failed: %v", err)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if len(env.store.incidents) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(env.store.incidents))
	}
	in := env.store.incidents[0]
	if in.Type != models.IncidentProblem {
		t.Errorf("expected default incident type, got %s", in.Type)
	}
	if in.PreviousStatus != models.ParticipantInExam {
		t.Errorf("expected previous status in_exam, got %s", in.PreviousStatus)
	}
}
