// Package player implements the phase state machine for the player role,
// including the topic-picking sub-flow. Like the host, a player only reacts
// to inbound events; the one optimistic transition is answer submission.
package player

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizparty/internal/countdown"
	"github.com/mcdev12/quizparty/internal/events"
	"github.com/mcdev12/quizparty/internal/leaderboard"
	"github.com/mcdev12/quizparty/internal/models"
	"github.com/mcdev12/quizparty/internal/realtime"
	"github.com/mcdev12/quizparty/internal/session"
)

// Phase is the single source of truth for which player screen is current.
type Phase string

const (
	PhaseUnconfigured Phase = "unconfigured"
	PhaseJoining      Phase = "joining"
	PhaseWaiting      Phase = "waiting"
	PhaseTopicInput   Phase = "topic_input"
	PhaseTopicWaiting Phase = "topic_waiting"
	PhaseTopicChosen  Phase = "topic_chosen"
	PhaseQuestion     Phase = "question"
	PhaseAnswered     Phase = "answered"
	PhaseResult       Phase = "result"
	PhaseGameOver     Phase = "game_over"
)

// DefaultTimeLimit seeds the countdown when question_start carries none.
const DefaultTimeLimit = 30

// ErrInvalidCode rejects join attempts with a malformed game code.
var ErrInvalidCode = errors.New("game code must be 4 characters")

// SessionStore defines what the controller needs from the persisted session.
type SessionStore interface {
	Save(session.Session) error
	Load() (session.Session, bool, error)
	Clear() error
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the countdown clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithPhaseHook registers an observer invoked after every phase change.
func WithPhaseHook(hook func(Phase)) Option {
	return func(c *Controller) { c.onPhase = hook }
}

// WithTickHook registers an observer for countdown ticks.
func WithTickHook(hook func(remaining int)) Option {
	return func(c *Controller) { c.onTick = hook }
}

// Controller drives the player's visible game state from inbound events.
type Controller struct {
	ch      realtime.Channel
	store   SessionStore
	clock   clockwork.Clock
	onPhase func(Phase)
	onTick  func(int)

	ticker *countdown.Ticker

	mu          sync.RWMutex
	phase       Phase
	username    string
	gameCode    string
	question    *models.Question
	selected    *int
	verdict     *bool
	score       int
	round       models.RoundContext
	isPicker    bool
	started     bool
	finalScores []leaderboard.Entry
	lastError   string

	unsub []func()
}

// New creates a player controller. Call Mount to begin receiving events.
func New(ch realtime.Channel, store SessionStore, opts ...Option) *Controller {
	c := &Controller{
		ch:    ch,
		store: store,
		clock: clockwork.NewRealClock(),
		phase: PhaseUnconfigured,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ticker = countdown.New(c.clock, func(remaining int) {
		if c.onTick != nil {
			c.onTick(remaining)
		}
	})
	return c
}

// Mount registers every event subscription. Unmount deregisters each with
// the exact same registration; the channel outlives the controller.
func (c *Controller) Mount() {
	c.unsub = []func(){
		c.ch.Subscribe(events.EventGameStarted, c.handleGameStarted),
		c.ch.Subscribe(events.EventUpdatePlayerList, c.handleUpdatePlayerList),
		c.ch.Subscribe(events.EventQuestionStart, c.handleQuestionStart),
		c.ch.Subscribe(events.EventRoundReveal, c.handleRoundReveal),
		c.ch.Subscribe(events.EventRoundStart, c.handleRoundStart),
		c.ch.Subscribe(events.EventTopicRequest, c.handleTopicRequest),
		c.ch.Subscribe(events.EventTopicWaiting, c.handleTopicWaiting),
		c.ch.Subscribe(events.EventTopicChosen, c.handleTopicChosen),
		c.ch.Subscribe(events.EventGameOver, c.handleGameOver),
		c.ch.Subscribe(events.EventError, c.handleError),
		c.ch.SubscribeState(c.handleConnectivity),
	}
}

// Unmount deregisters every subscription and stops the countdown.
func (c *Controller) Unmount() {
	for _, u := range c.unsub {
		u()
	}
	c.unsub = nil
	c.ticker.Stop()
}

// Join validates the code, persists the identity pair, and emits the join
// request.
func (c *Controller) Join(username, gameCode string) error {
	username = strings.TrimSpace(username)
	gameCode = strings.ToUpper(strings.TrimSpace(gameCode))
	if username == "" {
		return errors.New("username is empty")
	}
	if len(gameCode) != 4 {
		return ErrInvalidCode
	}

	c.mu.Lock()
	c.username = username
	c.gameCode = gameCode
	changed := c.setPhaseLocked(PhaseJoining)
	c.mu.Unlock()
	c.notifyPhase(changed)

	if err := c.store.Save(session.Session{
		GameCode:    gameCode,
		Role:        session.RolePlayer,
		DisplayName: username,
	}); err != nil {
		log.Error().Err(err).Msg("failed to persist player session")
	}

	c.emitJoin()
	return nil
}

// Resume loads a persisted game code/name pair and rejoins with it.
// It reports whether a session was found.
func (c *Controller) Resume() bool {
	sess, ok, err := c.store.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load persisted session")
		return false
	}
	if !ok || sess.Role != session.RolePlayer || sess.GameCode == "" || sess.DisplayName == "" {
		return false
	}

	c.mu.Lock()
	c.username = sess.DisplayName
	c.gameCode = sess.GameCode
	changed := c.setPhaseLocked(PhaseJoining)
	c.mu.Unlock()
	c.notifyPhase(changed)

	c.emitJoin()
	return true
}

func (c *Controller) emitJoin() {
	c.mu.RLock()
	username, code := c.username, c.gameCode
	c.mu.RUnlock()
	if username == "" || code == "" {
		return
	}
	c.ch.Emit(events.EventJoinGame, events.JoinGamePayload{Username: username, GameCode: code})
	log.Info().Str("game_code", code).Str("username", username).Msg("join requested")
}

// handleConnectivity re-emits the join request on every fresh connection.
// The server is idempotent to repeated joins for the same pair.
func (c *Controller) handleConnectivity(connected bool) {
	if !connected {
		return
	}
	c.mu.RLock()
	terminal := c.phase == PhaseGameOver
	havePair := c.username != "" && c.gameCode != ""
	c.mu.RUnlock()
	if terminal || !havePair {
		return
	}
	c.emitJoin()
}

// SubmitAnswer records the chosen index and optimistically moves to
// answered without waiting for acknowledgement. Submission is single-shot:
// once an index is recorded for the current question, later attempts are
// no-ops regardless of phase. It reports whether the answer was accepted.
func (c *Controller) SubmitAnswer(index int) bool {
	c.mu.Lock()
	if c.phase != PhaseQuestion || c.selected != nil {
		c.mu.Unlock()
		return false
	}
	if c.question != nil && (index < 0 || index >= len(c.question.Options)) {
		c.mu.Unlock()
		return false
	}
	idx := index
	c.selected = &idx
	code := c.gameCode
	changed := c.setPhaseLocked(PhaseAnswered)
	c.mu.Unlock()
	c.notifyPhase(changed)

	c.ticker.Stop()
	c.ch.Emit(events.EventSubmitAnswer, events.SubmitAnswerPayload{AnswerIndex: index, GameCode: code})
	log.Info().Int("answer_index", index).Str("game_code", code).Msg("answer submitted")
	return true
}

// SubmitTopic emits the trimmed topic and unconditionally returns to
// waiting; acceptance is not acknowledged.
func (c *Controller) SubmitTopic(topic string) bool {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return false
	}

	c.mu.Lock()
	if c.phase != PhaseTopicInput {
		c.mu.Unlock()
		return false
	}
	code := c.gameCode
	changed := c.setPhaseLocked(PhaseWaiting)
	c.mu.Unlock()
	c.notifyPhase(changed)

	c.ch.Emit(events.EventSubmitTopic, events.SubmitTopicPayload{Topic: topic, GameCode: code})
	log.Info().Str("topic", topic).Str("game_code", code).Msg("topic submitted")
	return true
}

func (c *Controller) handleGameStarted(json.RawMessage) {
	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.started = true
	changed := false
	if c.phase == PhaseJoining {
		changed = c.setPhaseLocked(PhaseWaiting)
	}
	c.mu.Unlock()
	c.notifyPhase(changed)
	log.Info().Msg("game started")
}

// handleUpdatePlayerList confirms the join: receiving a roster snapshot
// means the server accepted this player.
func (c *Controller) handleUpdatePlayerList(data json.RawMessage) {
	if _, err := events.DecodePlayers(data); err != nil {
		log.Error().Err(err).Msg("malformed player list payload")
		return
	}

	c.mu.Lock()
	changed := false
	if c.phase == PhaseJoining {
		changed = c.setPhaseLocked(PhaseWaiting)
	}
	c.mu.Unlock()
	c.notifyPhase(changed)
}

func (c *Controller) handleQuestionStart(data json.RawMessage) {
	var payload events.QuestionStartPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode question_start")
		return
	}

	limit := payload.TimeLimit
	if limit <= 0 {
		limit = DefaultTimeLimit
	}

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.question = &models.Question{
		Text:      payload.Text,
		Options:   payload.Options,
		TimeLimit: limit,
		Type:      payload.Type,
	}
	c.selected = nil
	c.verdict = nil
	if payload.Topic != "" {
		c.round.Topic = payload.Topic
	}
	if payload.PickerUsername != "" {
		c.round.Picker = payload.PickerUsername
	}
	changed := c.setPhaseLocked(PhaseQuestion)
	c.mu.Unlock()
	c.notifyPhase(changed)

	c.ticker.Start(limit)
}

func (c *Controller) handleRoundReveal(data json.RawMessage) {
	var payload events.RoundRevealPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode round_reveal")
		return
	}

	scores, err := events.DecodeScores(payload.Scores)
	if err != nil {
		log.Error().Err(err).Msg("malformed scores in round_reveal")
		scores = nil
	}

	c.ticker.Stop()

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	// No verdict without a recorded answer: an unanswered reveal is a valid
	// outcome, not an error.
	if c.selected != nil {
		correct := *c.selected == payload.CorrectIndex
		c.verdict = &correct
	}
	for _, s := range scores {
		if s.Username == c.username && s.Points != nil {
			c.score = *s.Points
			break
		}
	}
	changed := c.setPhaseLocked(PhaseResult)
	c.mu.Unlock()
	c.notifyPhase(changed)
}

func (c *Controller) handleRoundStart(data json.RawMessage) {
	c.ticker.Stop()

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.selected = nil
	c.verdict = nil
	c.question = nil
	var payload events.RoundStartPayload
	if err := json.Unmarshal(data, &payload); err == nil && payload.RoundNumber > 0 {
		c.round.Number = payload.RoundNumber
	}
	changed := c.setPhaseLocked(PhaseWaiting)
	c.mu.Unlock()
	c.notifyPhase(changed)
}

func (c *Controller) handleTopicRequest(json.RawMessage) {
	c.ticker.Stop()

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.isPicker = true
	changed := c.setPhaseLocked(PhaseTopicInput)
	c.mu.Unlock()
	c.notifyPhase(changed)
	log.Info().Msg("designated as round picker")
}

func (c *Controller) handleTopicWaiting(data json.RawMessage) {
	var payload events.TopicWaitingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode topic_waiting")
		return
	}

	c.ticker.Stop()

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	// The picker gets topic_request; a topic_waiting naming ourselves is
	// the broadcast copy and is ignored.
	if payload.PickerUsername != "" && payload.PickerUsername == c.username {
		c.mu.Unlock()
		return
	}
	c.isPicker = false
	c.round.Picker = payload.PickerUsername
	if payload.Round > 0 {
		c.round.Number = payload.Round
	}
	changed := c.setPhaseLocked(PhaseTopicWaiting)
	c.mu.Unlock()
	c.notifyPhase(changed)
}

func (c *Controller) handleTopicChosen(data json.RawMessage) {
	var payload events.TopicChosenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode topic_chosen")
		return
	}

	c.ticker.Stop()

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.round.Topic = payload.Topic
	if payload.PickerUsername != "" {
		c.round.Picker = payload.PickerUsername
	}
	changed := c.setPhaseLocked(PhaseTopicChosen)
	c.mu.Unlock()
	c.notifyPhase(changed)
}

func (c *Controller) handleGameOver(data json.RawMessage) {
	var payload events.ScoresPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode game_over")
	}

	final, err := leaderboard.FromRaw(payload.Scores)
	if err != nil {
		log.Error().Err(err).Msg("malformed scores in game_over")
	}

	c.ticker.Stop()

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.finalScores = final
	changed := c.setPhaseLocked(PhaseGameOver)
	c.mu.Unlock()
	c.notifyPhase(changed)

	if err := c.store.Clear(); err != nil {
		log.Error().Err(err).Msg("failed to clear session on game over")
	}
	log.Info().Msg("game over")
}

// handleError surfaces the server message verbatim. Invalidation messages
// purge the persisted session and route back to the entry flow.
func (c *Controller) handleError(data json.RawMessage) {
	msg := events.DecodeErrorMessage(data)
	log.Error().Str("message", msg).Msg("server error")

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.lastError = msg
	c.mu.Unlock()

	if !events.IsSessionInvalid(msg) {
		return
	}

	if err := c.store.Clear(); err != nil {
		log.Error().Err(err).Msg("failed to clear invalidated session")
	}

	c.ticker.Stop()

	c.mu.Lock()
	c.gameCode = ""
	c.question = nil
	c.selected = nil
	c.verdict = nil
	changed := c.setPhaseLocked(PhaseUnconfigured)
	c.mu.Unlock()
	c.notifyPhase(changed)
}

func (c *Controller) setPhaseLocked(phase Phase) bool {
	if c.phase == phase {
		return false
	}
	c.phase = phase
	return true
}

func (c *Controller) notifyPhase(changed bool) {
	if !changed || c.onPhase == nil {
		return
	}
	c.onPhase(c.Phase())
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Username returns the display name this player joined with.
func (c *Controller) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// GameCode returns the joined game code, if any.
func (c *Controller) GameCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gameCode
}

// Question returns the current question, or nil outside a question.
func (c *Controller) Question() *models.Question {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.question == nil {
		return nil
	}
	q := *c.question
	return &q
}

// Selected returns the recorded answer index, or nil if none was recorded.
func (c *Controller) Selected() *int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected == nil {
		return nil
	}
	idx := *c.selected
	return &idx
}

// Verdict reports correctness of the recorded answer after reveal, or nil
// when no answer was recorded.
func (c *Controller) Verdict() *bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.verdict == nil {
		return nil
	}
	v := *c.verdict
	return &v
}

// Score returns the last score the server reported for this player.
func (c *Controller) Score() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.score
}

// Round returns the current round context.
func (c *Controller) Round() models.RoundContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.round
}

// IsPicker reports whether this player was designated round picker.
func (c *Controller) IsPicker() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isPicker
}

// Started reports whether the server has begun the game.
func (c *Controller) Started() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// FinalScores returns the terminal standings after game_over.
func (c *Controller) FinalScores() []leaderboard.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]leaderboard.Entry, len(c.finalScores))
	copy(out, c.finalScores)
	return out
}

// LastError returns the most recent server error message, verbatim.
func (c *Controller) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Countdown returns the remaining seconds of the question timer.
func (c *Controller) Countdown() int {
	return c.ticker.Remaining()
}
