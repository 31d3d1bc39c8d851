package main

import (
	"fmt"

	"github.com/mcdev12/quizparty/internal/leaderboard"
)

func printStandings(title string, entries []leaderboard.Entry) {
	fmt.Printf("%s:\n", title)
	if len(entries) == 0 {
		fmt.Println("  (no scores)")
		return
	}
	for i, e := range entries {
		score := "-"
		if e.Score != nil {
			score = fmt.Sprintf("%d", *e.Score)
		}
		fmt.Printf("  %d. %s  %s\n", i+1, e.Name, score)
	}
}
