// Package leaderboard turns raw score snapshots into display-ready
// standings. The transform is pure: every snapshot is derived fresh from
// the latest payload and never merged with a prior one.
package leaderboard

import (
	"encoding/json"
	"sort"

	"github.com/mcdev12/quizparty/internal/events"
)

// Entry is one leaderboard row. A nil Score means the server has not
// reported one; it compares as 0 but the display value is not coerced.
type Entry struct {
	Name  string
	Score *int
}

// FromRaw decodes a scores payload (bare array or wrapped object) and
// returns normalized, sorted standings. Malformed payloads are an explicit
// error, never an empty snapshot.
func FromRaw(raw json.RawMessage) ([]Entry, error) {
	scores, err := events.DecodeScores(raw)
	if err != nil {
		return nil, err
	}
	return FromScores(scores), nil
}

// FromScores normalizes decoded scores into sorted standings. Entries
// without a resolvable name have already been dropped at the boundary.
func FromScores(scores []events.Score) []Entry {
	entries := make([]Entry, 0, len(scores))
	for _, s := range scores {
		if s.Username == "" {
			continue
		}
		entries = append(entries, Entry{Name: s.Username, Score: s.Points})
	}
	return Sort(entries)
}

// Sort returns a copy sorted non-increasing by score. The sort is stable,
// so ties keep their prior relative order, and re-sorting sorted output
// yields the same output.
func Sort(entries []Entry) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return points(sorted[i]) > points(sorted[j])
	})
	return sorted
}

func points(e Entry) int {
	if e.Score == nil {
		return 0
	}
	return *e.Score
}
