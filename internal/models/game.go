package models

// GameConfig holds the host-chosen settings for a game
type GameConfig struct {
	MaxPlayers        int `json:"maxPlayers"`
	RoundsPerPlayer   int `json:"roundsPerPlayer"`
	QuestionsPerRound int `json:"questionsPerRound"`
}

// Player represents one entry in the authoritative player roster.
// The roster always arrives as a full snapshot; a nil Score means the
// server has not reported one yet.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Score    *int   `json:"score,omitempty"`
}

// Question represents the question currently on screen. It is replaced
// wholesale on every question_start event and exists only while the
// question phase is active.
type Question struct {
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
	Type      string   `json:"type"`
}

// Question types reported by the server
const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeFreeText       = "free_text"
)

// RoundContext tracks which round is in progress, its topic, and the
// player picking it. Mutated only by topic and round-start events.
type RoundContext struct {
	Number int    `json:"roundNumber"`
	Topic  string `json:"topic"`
	Picker string `json:"pickerUsername"`
}
