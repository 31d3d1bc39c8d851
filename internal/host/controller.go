// Package host implements the phase state machine for the display role.
// Phases advance only on inbound server events; the host never progresses a
// round on its own clock, only the local countdown display ticks.
package host

import (
	"encoding/json"
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

// Phase is the single source of truth for which host screen is current.
type Phase string

const (
	PhaseUnconfigured   Phase = "unconfigured"
	PhaseCreating       Phase = "creating"
	PhaseLobby          Phase = "lobby"
	PhaseIntermission   Phase = "intermission"
	PhaseTopicSelection Phase = "topic_selection"
	PhaseTopicChosen    Phase = "topic_chosen"
	PhaseQuestion       Phase = "question"
	PhaseReveal         Phase = "reveal"
	PhaseRoundOver      Phase = "round_over"
	PhaseGameOver       Phase = "game_over"
)

// DefaultTimeLimit seeds the countdown when question_start carries none.
const DefaultTimeLimit = 30

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

// Controller drives the host's visible game state from inbound events.
// All mutation happens on the channel's dispatch goroutine; getters are safe
// from any goroutine.
type Controller struct {
	ch      realtime.Channel
	store   SessionStore
	clock   clockwork.Clock
	onPhase func(Phase)
	onTick  func(int)

	ticker *countdown.Ticker

	mu             sync.RWMutex
	phase          Phase
	gameCode       string
	cfg            models.GameConfig
	players        []models.Player
	standings      []leaderboard.Entry
	question       *models.Question
	answered       map[string]struct{}
	correctIndex   *int
	correctDisplay string
	round          models.RoundContext
	started        bool
	finalScores    []leaderboard.Entry
	lastError      string

	reconnectSent bool
	unsub         []func()
}

// New creates a host controller. Call Mount to begin receiving events.
func New(ch realtime.Channel, store SessionStore, opts ...Option) *Controller {
	c := &Controller{
		ch:       ch,
		store:    store,
		clock:    clockwork.NewRealClock(),
		phase:    PhaseUnconfigured,
		answered: make(map[string]struct{}),
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

// Mount registers every event subscription. Each registered handler is
// deregistered with its own unsubscribe on Unmount, so a remount never
// duplicates handling. The channel itself outlives the controller.
func (c *Controller) Mount() {
	c.unsub = []func(){
		c.ch.Subscribe(events.EventGameCreated, c.handleGameCreated),
		c.ch.Subscribe(events.EventHostReconnected, c.handleHostReconnected),
		c.ch.Subscribe(events.EventUpdatePlayerList, c.handleUpdatePlayerList),
		c.ch.Subscribe(events.EventGameStarted, c.handleGameStarted),
		c.ch.Subscribe(events.EventRoundStart, c.handleRoundStart),
		c.ch.Subscribe(events.EventTopicWaiting, c.handleTopicWaiting),
		c.ch.Subscribe(events.EventTopicChosen, c.handleTopicChosen),
		c.ch.Subscribe(events.EventQuestionStart, c.handleQuestionStart),
		c.ch.Subscribe(events.EventPlayerAnswered, c.handlePlayerAnswered),
		c.ch.Subscribe(events.EventRoundReveal, c.handleRoundReveal),
		c.ch.Subscribe(events.EventUpdateLeaderboard, c.handleUpdateLeaderboard),
		c.ch.Subscribe(events.EventRoundOver, c.handleRoundOver),
		c.ch.Subscribe(events.EventGameOver, c.handleGameOver),
		c.ch.Subscribe(events.EventError, c.handleError),
		c.ch.SubscribeState(c.handleConnectivity),
	}

	if c.ch.Connected() {
		c.maybeReconnect()
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

// CreateGame clamps the requested settings and asks the server for a new
// game. The controller sits in creating until game_created arrives.
func (c *Controller) CreateGame(cfg models.GameConfig) {
	cfg = clampConfig(cfg)

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.cfg = cfg
	c.players = nil
	c.gameCode = ""
	changed := c.setPhaseLocked(PhaseCreating)
	c.mu.Unlock()
	c.notifyPhase(changed)

	c.ch.Emit(events.EventCreateGame, events.CreateGamePayload{
		MaxPlayers:        cfg.MaxPlayers,
		RoundsPerPlayer:   cfg.RoundsPerPlayer,
		QuestionsPerRound: cfg.QuestionsPerRound,
	})
	log.Info().Int("max_players", cfg.MaxPlayers).Msg("create game requested")
}

// RequestPlayerList asks the server for a fresh roster snapshot.
func (c *Controller) RequestPlayerList() {
	c.ch.Emit(events.EventRequestPlayerList, nil)
}

func clampConfig(cfg models.GameConfig) models.GameConfig {
	return models.GameConfig{
		MaxPlayers:        clampInt(cfg.MaxPlayers, 2, 8),
		RoundsPerPlayer:   clampInt(cfg.RoundsPerPlayer, 1, 5),
		QuestionsPerRound: clampInt(cfg.QuestionsPerRound, 3, 10),
	}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// handleConnectivity re-requests the persisted game at most once per
// connection edge.
func (c *Controller) handleConnectivity(connected bool) {
	c.mu.Lock()
	c.reconnectSent = c.reconnectSent && connected
	c.mu.Unlock()

	if connected {
		c.maybeReconnect()
	}
}

func (c *Controller) maybeReconnect() {
	c.mu.Lock()
	if c.reconnectSent || c.gameCode != "" || c.phase == PhaseCreating || c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	sess, ok, err := c.store.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load persisted session")
		return
	}
	if !ok || sess.GameCode == "" || sess.Role != session.RoleHost {
		return
	}

	c.mu.Lock()
	if c.reconnectSent {
		c.mu.Unlock()
		return
	}
	c.reconnectSent = true
	c.mu.Unlock()

	c.ch.Emit(events.EventReconnectHost, events.ReconnectHostPayload{GameCode: sess.GameCode})
	log.Info().Str("game_code", sess.GameCode).Msg("host reconnection requested")
}

func (c *Controller) handleGameCreated(data json.RawMessage) {
	var payload events.GameCreatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode game_created")
		return
	}
	if payload.GameCode == "" {
		return
	}

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.gameCode = payload.GameCode
	if payload.MaxPlayers > 0 {
		c.cfg.MaxPlayers = payload.MaxPlayers
	}
	if payload.RoundsPerPlayer > 0 {
		c.cfg.RoundsPerPlayer = payload.RoundsPerPlayer
	}
	if payload.QuestionsPerRound > 0 {
		c.cfg.QuestionsPerRound = payload.QuestionsPerRound
	}
	changed := c.setPhaseLocked(PhaseLobby)
	c.mu.Unlock()
	c.notifyPhase(changed)

	if err := c.store.Save(session.Session{GameCode: payload.GameCode, Role: session.RoleHost}); err != nil {
		log.Error().Err(err).Msg("failed to persist host session")
	}
	log.Info().Str("game_code", payload.GameCode).Msg("game created")
}

func (c *Controller) handleHostReconnected(data json.RawMessage) {
	var payload events.HostReconnectedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode host_reconnected")
		return
	}
	if payload.GameCode == "" {
		return
	}

	if payload.GameState == events.GameStateOver {
		// The resumed game already finished. Purge instead of resuming.
		if err := c.store.Clear(); err != nil {
			log.Error().Err(err).Msg("failed to clear finished session")
		}
		c.mu.Lock()
		c.gameCode = ""
		c.started = false
		changed := c.setPhaseLocked(PhaseUnconfigured)
		c.mu.Unlock()
		c.notifyPhase(changed)
		log.Info().Str("game_code", payload.GameCode).Msg("previous game is over, session cleared")
		return
	}

	c.mu.Lock()
	c.gameCode = payload.GameCode
	c.cfg = models.GameConfig{
		MaxPlayers:        payload.MaxPlayers,
		RoundsPerPlayer:   payload.RoundsPerPlayer,
		QuestionsPerRound: payload.QuestionsPerRound,
	}
	changed := c.setPhaseLocked(PhaseLobby)
	c.mu.Unlock()
	c.notifyPhase(changed)

	if err := c.store.Save(session.Session{GameCode: payload.GameCode, Role: session.RoleHost}); err != nil {
		log.Error().Err(err).Msg("failed to persist resumed session")
	}
	log.Info().Str("game_code", payload.GameCode).Str("game_state", payload.GameState).Msg("host session resumed")
}

func (c *Controller) handleUpdatePlayerList(data json.RawMessage) {
	players, err := events.DecodePlayers(data)
	if err != nil {
		log.Error().Err(err).Msg("malformed player list payload")
		return
	}

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.players = players
	c.mu.Unlock()
}

func (c *Controller) handleGameStarted(json.RawMessage) {
	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	log.Info().Msg("game started")
}

func (c *Controller) handleRoundStart(data json.RawMessage) {
	var payload events.RoundStartPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode round_start")
		return
	}

	c.ticker.Stop()

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	if payload.RoundNumber > 0 {
		c.round.Number = payload.RoundNumber
	}
	c.question = nil
	c.correctIndex = nil
	c.correctDisplay = ""
	changed := c.setPhaseLocked(PhaseIntermission)
	c.mu.Unlock()
	c.notifyPhase(changed)
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
	c.round.Picker = payload.PickerUsername
	if payload.Round > 0 {
		c.round.Number = payload.Round
	}
	changed := c.setPhaseLocked(PhaseTopicSelection)
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
	c.answered = make(map[string]struct{})
	c.correctIndex = nil
	c.correctDisplay = ""
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

func (c *Controller) handlePlayerAnswered(data json.RawMessage) {
	var payload events.PlayerAnsweredPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode player_answered")
		return
	}
	if payload.PlayerID == "" {
		return
	}

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.answered[payload.PlayerID] = struct{}{}
	c.mu.Unlock()
}

func (c *Controller) handleRoundReveal(data json.RawMessage) {
	var payload events.RoundRevealPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode round_reveal")
		return
	}

	standings, err := leaderboard.FromRaw(payload.Scores)
	if err != nil {
		log.Error().Err(err).Msg("malformed scores in round_reveal")
		standings = nil
	}

	c.ticker.Stop()

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	idx := payload.CorrectIndex
	c.correctIndex = &idx
	c.correctDisplay = payload.CorrectAnswerDisplay
	if standings != nil {
		c.standings = standings
	}
	changed := c.setPhaseLocked(PhaseReveal)
	c.mu.Unlock()
	c.notifyPhase(changed)
}

func (c *Controller) handleUpdateLeaderboard(data json.RawMessage) {
	c.replaceStandings(data, "update_leaderboard")
}

// replaceStandings replaces the leaderboard wholesale from a scores
// snapshot, in either the bare-array or wrapped form.
func (c *Controller) replaceStandings(data json.RawMessage, event string) {
	standings, err := leaderboard.FromRaw(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("malformed scores payload")
		return
	}

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.standings = standings
	c.mu.Unlock()
}

func (c *Controller) handleRoundOver(data json.RawMessage) {
	var payload events.RoundOverPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Error().Err(err).Msg("failed to decode round_over")
		return
	}

	standings, err := leaderboard.FromRaw(payload.Scores)
	if err != nil {
		log.Error().Err(err).Msg("malformed scores in round_over")
		standings = nil
	}

	c.ticker.Stop()

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	if payload.Round > 0 {
		c.round.Number = payload.Round
	}
	if standings != nil {
		c.standings = standings
	}
	changed := c.setPhaseLocked(PhaseRoundOver)
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

func (c *Controller) handleError(data json.RawMessage) {
	msg := events.DecodeErrorMessage(data)
	log.Error().Str("message", msg).Msg("server error")

	c.mu.Lock()
	if c.phase == PhaseGameOver {
		c.mu.Unlock()
		return
	}
	c.lastError = msg
	creating := c.phase == PhaseCreating
	c.mu.Unlock()

	if events.IsSessionInvalid(msg) {
		if err := c.store.Clear(); err != nil {
			log.Error().Err(err).Msg("failed to clear invalidated session")
		}
		c.mu.Lock()
		c.gameCode = ""
		changed := false
		if creating {
			changed = c.setPhaseLocked(PhaseUnconfigured)
		}
		c.mu.Unlock()
		c.notifyPhase(changed)
		return
	}

	if creating {
		c.mu.Lock()
		changed := c.setPhaseLocked(PhaseUnconfigured)
		c.mu.Unlock()
		c.notifyPhase(changed)
	}
}

// setPhaseLocked updates the phase under c.mu and reports whether it
// changed. Callers invoke notifyPhase after releasing the lock so the hook
// can safely read controller state.
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

// GameCode returns the active game code, if any.
func (c *Controller) GameCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gameCode
}

// Config returns the effective game settings.
func (c *Controller) Config() models.GameConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Players returns the latest roster snapshot.
func (c *Controller) Players() []models.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Player, len(c.players))
	copy(out, c.players)
	return out
}

// Leaderboard returns the latest standings.
func (c *Controller) Leaderboard() []leaderboard.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]leaderboard.Entry, len(c.standings))
	copy(out, c.standings)
	return out
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

// AnsweredCount returns how many distinct players have answered.
func (c *Controller) AnsweredCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.answered)
}

// CorrectIndex returns the revealed answer index, or nil before reveal.
func (c *Controller) CorrectIndex() *int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.correctIndex == nil {
		return nil
	}
	idx := *c.correctIndex
	return &idx
}

// CorrectAnswerDisplay returns the revealed answer text, if the server sent one.
func (c *Controller) CorrectAnswerDisplay() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.correctDisplay
}

// Round returns the current round context.
func (c *Controller) Round() models.RoundContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.round
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
