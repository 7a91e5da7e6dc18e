// Package cli defines the cobra commands of the convmem binary.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/youssefsiam38/convmem/internal/config"
)

var version = "dev" // set via ldflags at build time

// state is shared by every subcommand once the root pre-run loaded the
// configuration.
type state struct {
	viper      *viper.Viper
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &state{viper: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "convmem",
		Short: "Conversational memory with compaction and query disambiguation",
		Long: `convmem keeps chat sessions within a token budget by folding old
messages into a rolling structured summary, and decides per query whether
to answer, answer every interpretation, or ask clarifying questions.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipConfig(cmd) {
				return nil
			}
			cfg, err := config.Load(st.viper, st.configPath)
			if err != nil {
				return err
			}
			st.cfg = cfg
			st.logger = newLogger(cfg.Log, cmd.ErrOrStderr())
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&st.configPath, "config", "", "config file (default: ./convmem.yaml or ~/.config/convmem/convmem.yaml)")
	flags.String("driver", "", "storage driver: pgx, sql or memory")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	bindFlag(st.viper, "driver", flags.Lookup("driver"))
	bindFlag(st.viper, "database_url", flags.Lookup("database-url"))
	bindFlag(st.viper, "log.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		newChatCmd(st),
		newServeCmd(st),
		newSessionsCmd(st),
		newMigrateCmd(st),
		newWatchCmd(st),
		newConfigCmd(st),
	)

	return rootCmd
}

// skipConfig reports whether cmd runs without a loaded configuration.
func skipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skip-config"] == "true" {
			return true
		}
	}
	return false
}
