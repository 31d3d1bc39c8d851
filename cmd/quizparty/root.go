package main

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type config struct {
	serverURL string
	wsURL     string
	dataDir   string
	verbose   bool
}

func (c *config) validate() error {
	if c.serverURL == "" {
		return errors.New("--server is required")
	}
	parsed, err := url.Parse(c.serverURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid server URL: %q", c.serverURL)
	}
	return nil
}

// socketURL derives the realtime channel endpoint from the server URL when
// no explicit one was given.
func (c *config) socketURL() string {
	if c.wsURL != "" {
		return c.wsURL
	}
	ws := strings.Replace(c.serverURL, "http", "ws", 1)
	return strings.TrimRight(ws, "/") + "/ws"
}

func (c *config) sessionPath() string {
	return filepath.Join(c.dataDir, "session.db")
}

func newRootCmd(cfg *config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZPARTY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizparty",
		Short:         "Real-time trivia party game client: host a big-screen game or join as a player.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return cfg.validate()
		},
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.serverURL, "server", "s", "http://localhost:3000", "game server base URL (env: QUIZPARTY_SERVER)")
	fs.StringVar(&cfg.wsURL, "ws-url", "", "realtime channel URL, derived from --server if empty (env: QUIZPARTY_WS_URL)")
	fs.StringVar(&cfg.dataDir, "data-dir", ".quizparty", "directory for persisted session state (env: QUIZPARTY_DATA_DIR)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display debug output (env: QUIZPARTY_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(newHostCmd(cfg))
	cmd.AddCommand(newPlayCmd(cfg))
	cmd.AddCommand(newLoginCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}
