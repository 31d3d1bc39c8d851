package events

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/quizparty/internal/models"
)

// The server sends player and score snapshots in two shapes: a bare array,
// or an object wrapping the array under a well-known key. Individual entries
// are either bare username strings or player objects. Decoding normalizes
// both shapes at the boundary and fails loudly on anything else rather than
// defaulting to an empty snapshot.

type listEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Score    *int   `json:"score"`
}

func (e *listEntry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*e = listEntry{Username: name}
		return nil
	}

	type plain listEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("entry is neither a string nor an object: %w", err)
	}
	*e = listEntry(p)
	return nil
}

func (e listEntry) displayName() string {
	if e.Username != "" {
		return e.Username
	}
	return e.Name
}

// decodeList accepts either `[...]` or `{"<key>": [...]}` and returns the
// normalized entries.
func decodeList(raw json.RawMessage, key string) ([]listEntry, error) {
	if len(raw) == 0 || isNull(raw) {
		return nil, fmt.Errorf("empty %s payload", key)
	}

	var entries []listEntry
	if err := json.Unmarshal(raw, &entries); err == nil {
		return entries, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("%s payload is neither an array nor an object: %w", key, err)
	}

	inner, ok := wrapped[key]
	if !ok {
		return nil, fmt.Errorf("%s payload object has no %q field", key, key)
	}
	if isNull(inner) {
		return nil, fmt.Errorf("%s payload %q field is null", key, key)
	}
	if err := json.Unmarshal(inner, &entries); err != nil {
		return nil, fmt.Errorf("decode %s array: %w", key, err)
	}
	return entries, nil
}

// isNull reports whether raw is the JSON null literal, which Unmarshal
// silently accepts into a nil slice.
func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// DecodePlayers decodes an update_player_list snapshot, dropping entries
// without a resolvable name. The result fully replaces any prior roster.
func DecodePlayers(raw json.RawMessage) ([]models.Player, error) {
	entries, err := decodeList(raw, "players")
	if err != nil {
		return nil, err
	}

	players := make([]models.Player, 0, len(entries))
	for _, e := range entries {
		name := e.displayName()
		if name == "" {
			continue
		}
		players = append(players, models.Player{ID: e.ID, Username: name, Score: e.Score})
	}
	return players, nil
}

// Score is one normalized entry of a scores snapshot. A nil Points means
// the server sent no score for that player.
type Score struct {
	Username string
	Points   *int
}

// DecodeScores decodes a scores snapshot from any event that carries one.
func DecodeScores(raw json.RawMessage) ([]Score, error) {
	entries, err := decodeList(raw, "scores")
	if err != nil {
		return nil, err
	}

	scores := make([]Score, 0, len(entries))
	for _, e := range entries {
		name := e.displayName()
		if name == "" {
			continue
		}
		scores = append(scores, Score{Username: name, Points: e.Score})
	}
	return scores, nil
}

// DecodeErrorMessage extracts the message from an error event, which the
// server sends as a bare JSON string.
func DecodeErrorMessage(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return string(raw)
	}
	return msg
}

// Invalidation phrases the server uses when a joined or resumed session can
// no longer be used. Matching messages purge the persisted session.
var sessionInvalidMessages = map[string]bool{
	"Game not found":       true,
	"Invalid game code":    true,
	"Game is full":         true,
	"Game already started": true,
}

// IsSessionInvalid reports whether a server error message means the
// persisted session is no longer joinable.
func IsSessionInvalid(msg string) bool {
	return sessionInvalidMessages[msg]
}
