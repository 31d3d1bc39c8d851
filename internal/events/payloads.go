package events

import "encoding/json"

// CreateGamePayload requests a new game with the host-chosen settings
type CreateGamePayload struct {
	MaxPlayers        int `json:"maxPlayers"`
	RoundsPerPlayer   int `json:"roundsPerPlayer"`
	QuestionsPerRound int `json:"questionsPerRound"`
}

// ReconnectHostPayload asks the server to resume a previously created game
type ReconnectHostPayload struct {
	GameCode string `json:"gameCode"`
}

// JoinGamePayload requests joining a game as a player. The server is
// idempotent to repeated joins for the same username/code pair.
type JoinGamePayload struct {
	Username string `json:"username"`
	GameCode string `json:"gameCode"`
}

// SubmitAnswerPayload submits the selected answer index for the current question
type SubmitAnswerPayload struct {
	AnswerIndex int    `json:"answerIndex"`
	GameCode    string `json:"gameCode"`
}

// SubmitTopicPayload submits the picker's topic for the next round
type SubmitTopicPayload struct {
	Topic    string `json:"topic"`
	GameCode string `json:"gameCode"`
}

// GameCreatedPayload confirms game creation and echoes the effective settings
type GameCreatedPayload struct {
	GameCode          string `json:"gameCode"`
	MaxPlayers        int    `json:"maxPlayers"`
	RoundsPerPlayer   int    `json:"roundsPerPlayer"`
	QuestionsPerRound int    `json:"questionsPerRound"`
}

// HostReconnectedPayload restores a resumed game's configuration. GameState
// reports where the server thinks the game is; GameStateOver means the
// session is finished and must not be resumed.
type HostReconnectedPayload struct {
	GameCode          string `json:"gameCode"`
	GameState         string `json:"gameState"`
	MaxPlayers        int    `json:"maxPlayers"`
	RoundsPerPlayer   int    `json:"roundsPerPlayer"`
	QuestionsPerRound int    `json:"questionsPerRound"`
}

// QuestionStartPayload carries a new question. Topic and PickerUsername are
// only present on the first question of a round.
type QuestionStartPayload struct {
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	TimeLimit      int      `json:"timeLimit"`
	Topic          string   `json:"topic,omitempty"`
	PickerUsername string   `json:"pickerUsername,omitempty"`
	Type           string   `json:"type,omitempty"`
}

// PlayerAnsweredPayload reports that a player has locked in an answer
type PlayerAnsweredPayload struct {
	PlayerID string `json:"playerId"`
}

// RoundRevealPayload declares the correct answer and the updated scores
type RoundRevealPayload struct {
	CorrectIndex         int             `json:"correctIndex"`
	CorrectAnswerDisplay string          `json:"correctAnswerDisplay,omitempty"`
	Scores               json.RawMessage `json:"scores"`
}

// ScoresPayload wraps a bare scores snapshot (update_leaderboard, game_over)
type ScoresPayload struct {
	Scores json.RawMessage `json:"scores"`
}

// RoundStartPayload announces a new round
type RoundStartPayload struct {
	RoundNumber int `json:"roundNumber"`
}

// TopicWaitingPayload names the player picking the next topic
type TopicWaitingPayload struct {
	PickerUsername string `json:"pickerUsername"`
	Round          int    `json:"round,omitempty"`
}

// TopicChosenPayload announces the chosen topic
type TopicChosenPayload struct {
	Topic          string `json:"topic"`
	PickerUsername string `json:"pickerUsername"`
}

// RoundOverPayload ends a round with a scores snapshot
type RoundOverPayload struct {
	Scores json.RawMessage `json:"scores"`
	Round  int             `json:"round,omitempty"`
}
