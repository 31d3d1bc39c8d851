package player

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/quizparty/internal/events"
	"github.com/mcdev12/quizparty/internal/realtime"
	"github.com/mcdev12/quizparty/internal/session"
)

type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string][]realtime.Handler
	stateSubs []func(bool)
	emitted   []emittedEvent
}

type emittedEvent struct {
	event   string
	payload interface{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]realtime.Handler)}
}

func (f *fakeChannel) Emit(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, emittedEvent{event: event, payload: payload})
}

func (f *fakeChannel) Subscribe(event string, h realtime.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], h)
	return func() {}
}

func (f *fakeChannel) SubscribeState(h func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateSubs = append(f.stateSubs, h)
	return func() {}
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) deliver(t *testing.T, event, payload string) {
	t.Helper()
	f.mu.Lock()
	handlers := append([]realtime.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	if len(handlers) == 0 {
		t.Fatalf("no handlers registered for %s", event)
	}
	for _, h := range handlers {
		h(json.RawMessage(payload))
	}
}

func (f *fakeChannel) setConnected(connected bool) {
	f.mu.Lock()
	if f.connected == connected {
		f.mu.Unlock()
		return
	}
	f.connected = connected
	subs := append([]func(bool){}, f.stateSubs...)
	f.mu.Unlock()
	for _, h := range subs {
		h(connected)
	}
}

func (f *fakeChannel) emittedEvents(event string) []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emittedEvent
	for _, e := range f.emitted {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestController(t *testing.T) (*Controller, *fakeChannel, *session.Store) {
	t.Helper()
	store, err := session.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ch := newFakeChannel()
	ctrl := New(ch, store, WithClock(clockwork.NewFakeClock()))
	ctrl.Mount()
	t.Cleanup(ctrl.Unmount)
	return ctrl, ch, store
}

func joinedController(t *testing.T) (*Controller, *fakeChannel, *session.Store) {
	t.Helper()
	ctrl, ch, store := newTestController(t)
	if err := ctrl.Join("ada", "ABCD"); err != nil {
		t.Fatalf("Join error: %v", err)
	}
	ch.deliver(t, events.EventGameStarted, `{}`)
	return ctrl, ch, store
}

func TestJoinValidatesAndPersists(t *testing.T) {
	ctrl, ch, store := newTestController(t)

	if err := ctrl.Join("", "ABCD"); err == nil {
		t.Fatal("expected error for empty username")
	}
	if err := ctrl.Join("ada", "ABC"); err != ErrInvalidCode {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	if err := ctrl.Join("  ada ", " abcd "); err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if got := ctrl.Phase(); got != PhaseJoining {
		t.Fatalf("expected joining, got %s", got)
	}
	if got := ctrl.GameCode(); got != "ABCD" {
		t.Fatalf("code not normalized: %q", got)
	}

	emits := ch.emittedEvents(events.EventJoinGame)
	if len(emits) != 1 {
		t.Fatalf("expected one join_game emit, got %d", len(emits))
	}
	payload := emits[0].payload.(events.JoinGamePayload)
	if payload.Username != "ada" || payload.GameCode != "ABCD" {
		t.Fatalf("unexpected join payload: %+v", payload)
	}

	sess, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("expected persisted session, err=%v ok=%v", err, ok)
	}
	if sess.Role != session.RolePlayer || sess.GameCode != "ABCD" || sess.DisplayName != "ada" {
		t.Fatalf("unexpected persisted session: %+v", sess)
	}
}

func TestResumeRejoinsFromStore(t *testing.T) {
	ctrl, ch, store := newTestController(t)

	if ctrl.Resume() {
		t.Fatal("Resume with empty store must report false")
	}

	if err := store.Save(session.Session{GameCode: "WXYZ", Role: session.RolePlayer, DisplayName: "ben"}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if !ctrl.Resume() {
		t.Fatal("expected Resume to find the session")
	}
	if got := ctrl.Phase(); got != PhaseJoining {
		t.Fatalf("expected joining, got %s", got)
	}
	emits := ch.emittedEvents(events.EventJoinGame)
	if len(emits) != 1 {
		t.Fatalf("expected one join_game emit, got %d", len(emits))
	}
}

func TestResumeIgnoresHostSession(t *testing.T) {
	ctrl, _, store := newTestController(t)

	if err := store.Save(session.Session{GameCode: "WXYZ", Role: session.RoleHost}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if ctrl.Resume() {
		t.Fatal("Resume must not adopt a host session")
	}
}

func TestRosterSnapshotConfirmsJoin(t *testing.T) {
	ctrl, ch, _ := newTestController(t)

	if err := ctrl.Join("ada", "ABCD"); err != nil {
		t.Fatalf("Join error: %v", err)
	}
	ch.deliver(t, events.EventUpdatePlayerList, `[{"username":"ada"}]`)

	if got := ctrl.Phase(); got != PhaseWaiting {
		t.Fatalf("expected waiting, got %s", got)
	}
}

func TestRejoinOnEveryConnection(t *testing.T) {
	_, ch, _ := joinedController(t)

	ch.setConnected(true)
	ch.setConnected(false)
	ch.setConnected(true)

	if got := len(ch.emittedEvents(events.EventJoinGame)); got != 3 {
		t.Fatalf("expected join per connection edge plus the initial join, got %d", got)
	}
}

func TestAnswerIsSingleShot(t *testing.T) {
	ctrl, ch, _ := joinedController(t)

	ch.deliver(t, events.EventQuestionStart, `{"text":"?","options":["a","b","c","d"],"timeLimit":10}`)

	if ctrl.SubmitAnswer(9) {
		t.Fatal("out-of-range index must be rejected")
	}
	if !ctrl.SubmitAnswer(2) {
		t.Fatal("expected in-range answer to be accepted")
	}
	if got := ctrl.Phase(); got != PhaseAnswered {
		t.Fatalf("expected answered, got %s", got)
	}
	if ctrl.SubmitAnswer(1) {
		t.Fatal("second submission must be a no-op")
	}

	emits := ch.emittedEvents(events.EventSubmitAnswer)
	if len(emits) != 1 {
		t.Fatalf("expected exactly one submit_answer emit, got %d", len(emits))
	}
	payload := emits[0].payload.(events.SubmitAnswerPayload)
	if payload.AnswerIndex != 2 || payload.GameCode != "ABCD" {
		t.Fatalf("unexpected answer payload: %+v", payload)
	}
}

func TestRevealScoresAnsweredPlayer(t *testing.T) {
	ctrl, ch, _ := joinedController(t)

	ch.deliver(t, events.EventQuestionStart, `{"text":"?","options":["a","b","c"],"timeLimit":10}`)
	ctrl.SubmitAnswer(2)
	ch.deliver(t, events.EventRoundReveal, `{"correctIndex":2,"scores":[{"username":"ada","score":10}]}`)

	if got := ctrl.Phase(); got != PhaseResult {
		t.Fatalf("expected result, got %s", got)
	}
	if v := ctrl.Verdict(); v == nil || !*v {
		t.Fatalf("expected correct verdict, got %v", v)
	}
	if got := ctrl.Score(); got != 10 {
		t.Fatalf("expected score 10, got %d", got)
	}
}

func TestRevealWithoutAnswerLeavesNilVerdict(t *testing.T) {
	ctrl, ch, _ := joinedController(t)

	ch.deliver(t, events.EventQuestionStart, `{"text":"?","options":["a","b"],"timeLimit":10}`)
	ch.deliver(t, events.EventRoundReveal, `{"correctIndex":0,"scores":[]}`)

	if got := ctrl.Phase(); got != PhaseResult {
		t.Fatalf("expected result, got %s", got)
	}
	if v := ctrl.Verdict(); v != nil {
		t.Fatalf("verdict without answer must stay nil, got %v", *v)
	}
}

func TestScoreRetainedWhenAbsentFromReveal(t *testing.T) {
	ctrl, ch, _ := joinedController(t)

	ch.deliver(t, events.EventQuestionStart, `{"text":"?","options":["a","b"],"timeLimit":10}`)
	ctrl.SubmitAnswer(0)
	ch.deliver(t, events.EventRoundReveal, `{"correctIndex":0,"scores":[{"username":"ada","score":15}]}`)

	ch.deliver(t, events.EventQuestionStart, `{"text":"?","options":["a","b"],"timeLimit":10}`)
	ctrl.SubmitAnswer(1)
	ch.deliver(t, events.EventRoundReveal, `{"correctIndex":0,"scores":[{"username":"ben","score":20}]}`)

	if got := ctrl.Score(); got != 15 {
		t.Fatalf("score must survive a reveal that omits this player, got %d", got)
	}
}

func TestQuestionStartResetsAnswerState(t *testing.T) {
	ctrl, ch, _ := joinedController(t)

	ch.deliver(t, events.EventQuestionStart, `{"text":"q1","options":["a","b"],"timeLimit":10}`)
	ctrl.SubmitAnswer(0)
	ch.deliver(t, events.EventRoundReveal, `{"correctIndex":1,"scores":[]}`)

	ch.deliver(t, events.EventQuestionStart, `{"text":"q2","options":["a","b"],"topic":"Movies","pickerUsername":"ben"}`)

	if got := ctrl.Phase(); got != PhaseQuestion {
		t.Fatalf("expected question, got %s", got)
	}
	if ctrl.Selected() != nil || ctrl.Verdict() != nil {
		t.Fatal("answer state not reset for the new question")
	}
	if q := ctrl.Question(); q == nil || q.TimeLimit != DefaultTimeLimit {
		t.Fatalf("expected default time limit, got %+v", q)
	}
	if r := ctrl.Round(); r.Topic != "Movies" || r.Picker != "ben" {
		t.Fatalf("round context not carried: %+v", r)
	}
}

func TestTopicRequestAndSubmit(t *testing.T) {
	ctrl, ch, _ := joinedController(t)

	ch.deliver(t, events.EventTopicRequest, `{}`)
	if got := ctrl.Phase(); got != PhaseTopicInput {
		t.Fatalf("expected topic_input, got %s", got)
	}
	if !ctrl.IsPicker() {
		t.Fatal("expected picker flag set")
	}

	if ctrl.SubmitTopic("   ") {
		t.Fatal("blank topic must be rejected")
	}
	if !ctrl.SubmitTopic("  Space  ") {
		t.Fatal("expected topic submission to be accepted")
	}
	if got := ctrl.Phase(); got != PhaseWaiting {
		t.Fatalf("expected waiting after topic submit, got %s", got)
	}

	emits := ch.emittedEvents(events.EventSubmitTopic)
	if len(emits) != 1 {
		t.Fatalf("expected one submit_topic emit, got %d", len(emits))
	}
	payload := emits[0].payload.(events.SubmitTopicPayload)
	if payload.Topic != "Space" || payload.GameCode != "ABCD" {
		t.Fatalf("unexpected topic payload: %+v", payload)
	}

	if ctrl.SubmitTopic("Again") {
		t.Fatal("topic submission outside topic_input must be rejected")
	}
}

func TestTopicWaitingIgnoresSelfAsPicker(t *testing.T) {
	ctrl, ch, _ := joinedController(t)

	ch.deliver(t, events.EventTopicRequest, `{}`)
	ch.deliver(t, events.EventTopicWaiting, `{"pickerUsername":"ada"}`)

	if got := ctrl.Phase(); got != PhaseTopicInput {
		t.Fatalf("broadcast naming self must not change phase, got %s", got)
	}

	ch.deliver(t, events.EventTopicWaiting, `{"pickerUsername":"ben","round":2}`)
	if got := ctrl.Phase(); got != PhaseTopicWaiting {
		t.Fatalf("expected topic_waiting, got %s", got)
	}
	if r := ctrl.Round(); r.Picker != "ben" || r.Number != 2 {
		t.Fatalf("round context not updated: %+v", r)
	}
	if ctrl.IsPicker() {
		t.Fatal("picker flag must clear when another player picks")
	}
}

func TestTopicEventsStopCountdown(t *testing.T) {
	store, err := session.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var mu sync.Mutex
	var ticks []int
	clock := clockwork.NewFakeClock()
	ch := newFakeChannel()
	ctrl := New(ch, store,
		WithClock(clock),
		WithTickHook(func(remaining int) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		}),
	)
	ctrl.Mount()
	t.Cleanup(ctrl.Unmount)

	if err := ctrl.Join("ada", "ABCD"); err != nil {
		t.Fatalf("Join error: %v", err)
	}
	ch.deliver(t, events.EventGameStarted, `{}`)

	ch.deliver(t, events.EventQuestionStart, `{"text":"?","options":["a","b"],"timeLimit":10}`)
	ch.deliver(t, events.EventTopicRequest, `{}`)

	clock.Advance(time.Second)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) != 0 {
		t.Fatalf("countdown ticked after phase left question: %v", ticks)
	}
}

func TestTopicChosenStoresTopic(t *testing.T) {
	ctrl, ch, _ := joinedController(t)

	ch.deliver(t, events.EventTopicChosen, `{"topic":"History","pickerUsername":"ben"}`)

	if got := ctrl.Phase(); got != PhaseTopicChosen {
		t.Fatalf("expected topic_chosen, got %s", got)
	}
	if r := ctrl.Round(); r.Topic != "History" || r.Picker != "ben" {
		t.Fatalf("round context not updated: %+v", r)
	}
}

func TestGameOverIsTerminal(t *testing.T) {
	ctrl, ch, store := joinedController(t)

	ch.deliver(t, events.EventGameOver, `{"scores":[{"username":"ada","score":30},{"username":"ben","score":10}]}`)

	if got := ctrl.Phase(); got != PhaseGameOver {
		t.Fatalf("expected game_over, got %s", got)
	}
	final := ctrl.FinalScores()
	if len(final) != 2 || final[0].Name != "ada" {
		t.Fatalf("unexpected final scores: %+v", final)
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatal("expected session cleared on game over")
	}

	ch.deliver(t, events.EventQuestionStart, `{"text":"?","options":["a"],"timeLimit":5}`)
	if got := ctrl.Phase(); got != PhaseGameOver {
		t.Fatalf("terminal phase left: %s", got)
	}

	// No rejoin after the game has ended.
	ch.setConnected(true)
	if got := len(ch.emittedEvents(events.EventJoinGame)); got != 1 {
		t.Fatalf("expected no rejoin after game over, got %d joins", got)
	}
}

func TestErrorInvalidationResetsToEntry(t *testing.T) {
	ctrl, ch, store := joinedController(t)

	ch.deliver(t, events.EventQuestionStart, `{"text":"?","options":["a","b"],"timeLimit":10}`)
	ch.deliver(t, events.EventError, `"Game already started"`)

	if got := ctrl.LastError(); got != "Game already started" {
		t.Fatalf("error message not surfaced verbatim: %q", got)
	}
	if got := ctrl.Phase(); got != PhaseUnconfigured {
		t.Fatalf("expected unconfigured, got %s", got)
	}
	if ctrl.Question() != nil {
		t.Fatal("question state must be cleared on invalidation")
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatal("expected purged session")
	}
}

func TestOpaqueErrorKeepsState(t *testing.T) {
	ctrl, ch, store := joinedController(t)

	ch.deliver(t, events.EventError, `"Try again later"`)

	if got := ctrl.LastError(); got != "Try again later" {
		t.Fatalf("unexpected last error: %q", got)
	}
	if got := ctrl.Phase(); got != PhaseWaiting {
		t.Fatalf("opaque error must not change phase, got %s", got)
	}
	if _, ok, _ := store.Load(); !ok {
		t.Fatal("opaque error must not clear the session")
	}
}

func TestRoundStartClearsQuestionState(t *testing.T) {
	ctrl, ch, _ := joinedController(t)

	ch.deliver(t, events.EventQuestionStart, `{"text":"?","options":["a","b"],"timeLimit":10}`)
	ctrl.SubmitAnswer(0)
	ch.deliver(t, events.EventRoundStart, `{"roundNumber":2}`)

	if got := ctrl.Phase(); got != PhaseWaiting {
		t.Fatalf("expected waiting, got %s", got)
	}
	if ctrl.Question() != nil || ctrl.Selected() != nil {
		t.Fatal("question state not cleared on round start")
	}
	if got := ctrl.Round().Number; got != 2 {
		t.Fatalf("round number not stored: %d", got)
	}
}
