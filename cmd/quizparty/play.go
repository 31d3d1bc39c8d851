package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/quizparty/internal/player"
	"github.com/mcdev12/quizparty/internal/realtime"
	"github.com/mcdev12/quizparty/internal/session"
)

func newPlayCmd(cfg *config) *cobra.Command {
	var name string
	var code string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a game as a player from this terminal.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), cfg, name, code)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&name, "name", "n", "", "display name to join with")
	fs.StringVarP(&code, "code", "c", "", "4-character game code")

	return cmd
}

func runPlay(ctx context.Context, cfg *config, name, code string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := session.Open(cfg.sessionPath())
	if err != nil {
		return err
	}
	defer store.Close()

	sess, _, err := store.Load()
	if err != nil {
		return err
	}

	conn := realtime.New(realtime.DefaultConfig(cfg.socketURL(), sess.AuthToken))
	go conn.Run(ctx)

	gameDone := make(chan struct{})
	var once sync.Once

	var ctrl *player.Controller
	ctrl = player.New(conn, store,
		player.WithPhaseHook(func(p player.Phase) {
			log.Info().Str("phase", string(p)).Msg("player phase changed")
			printPlayerScreen(ctrl, p)
			if p == player.PhaseGameOver {
				once.Do(func() { close(gameDone) })
			}
		}),
		player.WithTickHook(func(remaining int) {
			fmt.Printf("\rTime: %2ds ", remaining)
			if remaining == 0 {
				fmt.Println()
			}
		}),
	)
	ctrl.Mount()
	defer ctrl.Unmount()

	switch {
	case name != "" && code != "":
		if err := ctrl.Join(name, code); err != nil {
			return err
		}
	case ctrl.Resume():
		log.Info().Str("game_code", ctrl.GameCode()).Msg("resuming persisted session")
	default:
		return fmt.Errorf("no persisted session found; provide --name and --code")
	}

	go readInput(ctx, ctrl)

	select {
	case <-ctx.Done():
		log.Info().Msg("player shutting down")
	case <-gameDone:
		printStandings("Final scores", ctrl.FinalScores())
	}
	return nil
}

// readInput turns terminal lines into answers or topics depending on the
// current phase. Answers are entered as 1-based option numbers.
func readInput(ctx context.Context, ctrl *player.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch ctrl.Phase() {
		case player.PhaseQuestion:
			n, err := strconv.Atoi(line)
			if err != nil {
				fmt.Println("Enter the option number of your answer.")
				continue
			}
			if !ctrl.SubmitAnswer(n - 1) {
				fmt.Println("Answer not accepted.")
			}
		case player.PhaseTopicInput:
			if !ctrl.SubmitTopic(line) {
				fmt.Println("Topic not accepted.")
			}
		default:
			fmt.Println("Nothing to input right now.")
		}
	}
}

func printPlayerScreen(ctrl *player.Controller, p player.Phase) {
	switch p {
	case player.PhaseWaiting:
		fmt.Println("Look at the host screen. Waiting for the next question...")
	case player.PhaseTopicInput:
		fmt.Println("Pick a topic! Type it and press enter.")
	case player.PhaseTopicWaiting:
		picker := ctrl.Round().Picker
		if picker == "" {
			picker = "another player"
		}
		fmt.Printf("Waiting for %s to pick a topic...\n", picker)
	case player.PhaseTopicChosen:
		fmt.Printf("Topic selected: %s. Get ready!\n", ctrl.Round().Topic)
	case player.PhaseQuestion:
		q := ctrl.Question()
		if q == nil {
			return
		}
		fmt.Println(q.Text)
		for i, opt := range q.Options {
			fmt.Printf("  %d) %s\n", i+1, opt)
		}
	case player.PhaseAnswered:
		fmt.Println("Answer submitted! Waiting for others...")
	case player.PhaseResult:
		if v := ctrl.Verdict(); v != nil {
			if *v {
				fmt.Println("Correct!")
			} else {
				fmt.Println("Wrong!")
			}
		}
		fmt.Printf("Current score: %d\n", ctrl.Score())
	case player.PhaseUnconfigured:
		if msg := ctrl.LastError(); msg != "" {
			fmt.Printf("Session ended: %s\n", msg)
		}
	}
}
