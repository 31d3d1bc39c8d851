package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/quizparty/internal/host"
	"github.com/mcdev12/quizparty/internal/models"
	"github.com/mcdev12/quizparty/internal/netinfo"
	"github.com/mcdev12/quizparty/internal/realtime"
	"github.com/mcdev12/quizparty/internal/session"
)

func newHostCmd(cfg *config) *cobra.Command {
	var gameCfg models.GameConfig

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run the big-screen host display: create or resume a game and follow it to the end.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), cfg, gameCfg)
		},
	}

	fs := cmd.Flags()
	fs.IntVar(&gameCfg.MaxPlayers, "players", 3, "number of players to wait for (2-8)")
	fs.IntVar(&gameCfg.RoundsPerPlayer, "rounds", 2, "rounds per player (1-5)")
	fs.IntVar(&gameCfg.QuestionsPerRound, "questions", 5, "questions per round (3-10)")

	return cmd
}

func runHost(ctx context.Context, cfg *config, gameCfg models.GameConfig) error {
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

	ctrl := host.New(conn, store,
		host.WithPhaseHook(func(p host.Phase) {
			log.Info().Str("phase", string(p)).Msg("host phase changed")
			printHostScreen(p)
			if p == host.PhaseGameOver {
				once.Do(func() { close(gameDone) })
			}
		}),
		host.WithTickHook(func(remaining int) {
			fmt.Printf("\rTime: %2ds ", remaining)
			if remaining == 0 {
				fmt.Println()
			}
		}),
	)
	ctrl.Mount()
	defer ctrl.Unmount()

	printJoinInfo(ctx, cfg)

	// A persisted host session is resumed through the connectivity edge; a
	// fresh run creates a new game.
	if sess.GameCode == "" || sess.Role != session.RoleHost {
		ctrl.CreateGame(gameCfg)
	}

	go pollHost(ctx, ctrl)

	select {
	case <-ctx.Done():
		log.Info().Msg("host shutting down")
	case <-gameDone:
		printStandings("Final scores", ctrl.FinalScores())
	}
	return nil
}

// pollHost echoes roster and leaderboard changes at a human pace.
func pollHost(ctx context.Context, ctrl *host.Controller) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastPlayers int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctrl.Phase() != host.PhaseLobby {
				continue
			}
			ctrl.RequestPlayerList()
			players := ctrl.Players()
			if len(players) != lastPlayers {
				lastPlayers = len(players)
				fmt.Printf("Players joined: %d/%d\n", len(players), ctrl.Config().MaxPlayers)
				for _, p := range players {
					fmt.Printf("  - %s\n", p.Username)
				}
			}
		}
	}
}

func printHostScreen(p host.Phase) {
	switch p {
	case host.PhaseLobby:
		fmt.Println("Lobby open, waiting for players...")
	case host.PhaseIntermission:
		fmt.Println("Round starting...")
	case host.PhaseTopicSelection:
		fmt.Println("Waiting for the round picker to choose a topic...")
	case host.PhaseQuestion:
		fmt.Println("Question on screen!")
	case host.PhaseReveal:
		fmt.Println("Answers revealed.")
	case host.PhaseRoundOver:
		fmt.Println("Round over.")
	}
}

func printJoinInfo(ctx context.Context, cfg *config) {
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, err := netinfo.Lookup(lookupCtx, nil, cfg.serverURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch network info")
		return
	}

	primary, alt := info.JoinURLs("http", 3000)
	if primary != "" {
		fmt.Printf("Join at: %s\n", primary)
	}
	if alt != "" {
		fmt.Printf("Or try:  %s\n", alt)
	}

	if primary == "" {
		return
	}
	png, err := netinfo.JoinQR(primary, 256)
	if err != nil {
		log.Warn().Err(err).Msg("failed to render join QR code")
		return
	}
	qrPath := filepath.Join(cfg.dataDir, "join.png")
	if err := os.WriteFile(qrPath, png, 0o644); err != nil {
		log.Warn().Err(err).Msg("failed to write join QR code")
		return
	}
	fmt.Printf("Join QR code written to %s\n", qrPath)
}
