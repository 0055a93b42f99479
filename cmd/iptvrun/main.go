package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	commit    = ""
	buildDate = ""
)

// logFile is the append-only log stream opened by --log-file.
var logFile *os.File

// Create the root command
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iptvrun",
		Short: "iptvrun: run the IPTV data-collection pipeline once",
		Long: "iptvrun loads the settings file, checks that the collection scripts can run and the " +
			"database is reachable, then runs every collection script in order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "info", "Set log level. Available: trace, debug, info, warn, error, fatal")
	cmd.PersistentFlags().String("config", "", "options file (.yaml or .toml)")
	cmd.PersistentFlags().String("env-file", "", "settings file with KEY=VALUE lines (default .env)")
	cmd.PersistentFlags().String("log-file", "", "append structured logs to this file")
	cmd.PersistentFlags().String("work-dir", "", "directory holding the collection scripts")
	cmd.PersistentFlags().String("interpreter", "", "interpreter used to run the scripts (default $PYTHON_PATH or python3)")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		levelStr, _ := c.Flags().GetString("log")
		switch levelStr {
		case "trace":
			zerolog.SetGlobalLevel(zerolog.TraceLevel)
		case "debug":
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		case "info":
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		case "warn":
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		case "error":
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		case "fatal":
			zerolog.SetGlobalLevel(zerolog.FatalLevel)
		default:
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
		return nil
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newTasksCmd())
	cmd.AddCommand(newConfigCmd())
	return cmd
}

// Create the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "iptvrun %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

// Open the append-only log stream once and tee the logger into it.
func openLogFile(path string) error {
	if path == "" || logFile != nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logFile = f
	setupLogger(f)
	return nil
}

// Setup the logger. Console output loses its colors when stderr is not a terminal,
// which is the case under cron.
func setupLogger(file io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	fd := os.Stderr.Fd()
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd),
	}
	var w io.Writer = console
	if file != nil {
		w = zerolog.MultiLevelWriter(console, file)
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// Main entry point
func main() {
	setupLogger(nil)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	root := newRootCmd()
	ctx, cancel := context.WithCancel(context.Background())
	root.SetContext(ctx)
	err := root.Execute()
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("iptvrun failed")
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
