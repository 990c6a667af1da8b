// Package cli implements the chatpipe command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/chatpipe/internal/config"
	"github.com/hupe1980/chatpipe/logging"
)

// Version is the build version, set with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// Options are the global flags.
type Options struct {
	Config string
}

// app carries state shared by all subcommands once configuration is loaded.
type app struct {
	v      *viper.Viper
	cfg    config.Config
	logger *logging.ChatLogger
}

// NewRootCmd builds the chatpipe command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)
	config.Bind(a.v)

	root := &cobra.Command{
		Use:           "chatpipe",
		Short:         "chatpipe - streaming chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(opts.Config)
		},
	}

	root.PersistentFlags().StringVar(
		&opts.Config,
		"config",
		"",
		"config file (default: ./chatpipe.yaml)",
	)
	root.PersistentFlags().String("backend", "", "backend type: openai, anthropic, ollama or mock")
	root.PersistentFlags().String("model", "", "model identifier")
	root.PersistentFlags().String("db", "", "SQLite database path (empty keeps sessions in memory)")
	_ = a.v.BindPFlag("backend.type", root.PersistentFlags().Lookup("backend"))
	_ = a.v.BindPFlag("backend.model", root.PersistentFlags().Lookup("model"))
	_ = a.v.BindPFlag("store.path", root.PersistentFlags().Lookup("db"))

	root.AddCommand(newChatCmd(a))
	root.AddCommand(newSessionsCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) load(configFile string) error {
	if err := config.ReadFile(a.v, configFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		Component: "cli",
	})
	return nil
}
