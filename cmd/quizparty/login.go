package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/quizparty/internal/auth"
	"github.com/mcdev12/quizparty/internal/session"
)

func newLoginCmd(cfg *config) *cobra.Command {
	var creds auth.Credentials
	var signup bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the game server and persist the token.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), cfg, creds, signup)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&creds.Username, "username", "u", "", "account username")
	fs.StringVarP(&creds.Password, "password", "p", "", "account password")
	fs.BoolVar(&signup, "signup", false, "create a new account instead of logging in")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runLogin(ctx context.Context, cfg *config, creds auth.Credentials, signup bool) error {
	client := auth.NewClient(cfg.serverURL)

	var identity *auth.Identity
	var err error
	if signup {
		identity, err = client.Signup(ctx, creds)
	} else {
		identity, err = client.Login(ctx, creds)
	}
	if err != nil {
		return err
	}

	store, err := session.Open(cfg.sessionPath())
	if err != nil {
		return err
	}
	defer store.Close()

	// Keep any game in progress; only the identity fields change.
	sess, _, err := store.Load()
	if err != nil {
		return err
	}
	sess.DisplayName = identity.Username
	sess.AuthToken = identity.Token
	if err := store.Save(sess); err != nil {
		return err
	}

	log.Info().Str("username", identity.Username).Msg("authenticated")
	fmt.Println("Logged in. Token persisted for host/play sessions.")
	return nil
}
