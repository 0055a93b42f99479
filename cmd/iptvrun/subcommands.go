package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	core "github.com/3cpo-dev/iptvrun/internal/core"
	"github.com/3cpo-dev/iptvrun/internal/preflight"
	"github.com/3cpo-dev/iptvrun/internal/runner"
	"github.com/3cpo-dev/iptvrun/internal/telemetry"
)

// Resolve options, apply the settings file and build the pipeline config, in that order.
func resolve(cmd *cobra.Command) (core.Options, *core.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	opts, err := core.LoadOptions(cfgPath)
	if err != nil {
		return opts, nil, err
	}
	applyFlags(cmd, &opts)
	if err := openLogFile(opts.LogFile); err != nil {
		return opts, nil, err
	}
	envFile := opts.EnvFile
	if envFile != "" && !filepath.IsAbs(envFile) {
		envFile = filepath.Join(opts.WorkDir, envFile)
	}
	if _, err := core.LoadEnv(envFile); err != nil {
		return opts, nil, err
	}
	return opts, core.BuildConfig(), nil
}

// Explicit flags override the options file.
func applyFlags(cmd *cobra.Command, opts *core.Options) {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Lookup(name) != nil && f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if f.Lookup(name) != nil && f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}
	str("env-file", &opts.EnvFile)
	str("log-file", &opts.LogFile)
	str("work-dir", &opts.WorkDir)
	str("interpreter", &opts.Interpreter)
	str("lock-file", &opts.LockFile)
	str("metrics-file", &opts.MetricsFile)
	boolean("abort-on-interrupt", &opts.AbortOnInterrupt)
	boolean("capture-output", &opts.CaptureOutput)
}

// Run the pipeline once
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run preflight checks, then every collection script in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			opts, cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			runID := uuid.NewString()
			logger := log.With().Str("run_id", runID).Logger()

			if opts.LockFile != "" {
				lock := core.NewRunLock(opts.LockFile)
				if err := lock.Acquire(); err != nil {
					return err
				}
				defer func() {
					if err := lock.Release(); err != nil {
						logger.Warn().Err(err).Str("lock", lock.Path()).Msg("release lock")
					}
				}()
			}

			metrics := telemetry.NewCollector()
			interpreter := opts.InterpreterPath()
			logger.Info().Str("interpreter", interpreter).Str("work_dir", opts.WorkDir).Msg("preflight")
			checker := preflight.NewChecker(preflight.InterpreterResolver{Interpreter: interpreter})
			pre := checker.Run(cmd.Context(), cfg)
			metrics.RecordPreflight(pre.OK())
			if err := pre.Err(); err != nil {
				if ferr := metrics.Flush(opts.MetricsFile); ferr != nil {
					logger.Warn().Err(ferr).Msg("flush metrics")
				}
				return fmt.Errorf("preflight: %w", err)
			}

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigc)

			r := runner.New(runner.Options{
				Interpreter:      interpreter,
				WorkDir:          opts.WorkDir,
				AbortOnInterrupt: opts.AbortOnInterrupt,
				CaptureOutput:    opts.CaptureOutput,
				Stdout:           cmd.OutOrStdout(),
				Stderr:           cmd.ErrOrStderr(),
				Interrupts:       sigc,
				Metrics:          metrics,
				RunID:            runID,
			})
			rep := r.Run(cmd.Context(), runner.DefaultTasks(opts.WorkDir))
			logger.Info().Str("summary", runner.Summarize(rep)).Msg("run complete")

			if err := metrics.Flush(opts.MetricsFile); err != nil {
				logger.Warn().Err(err).Msg("flush metrics")
			}
			if asJSON {
				return runner.WriteJSON(cmd.OutOrStdout(), rep)
			}
			fmt.Fprintln(cmd.OutOrStdout(), runner.RenderTable(rep))
			return nil
		},
	}
	cmd.Flags().Bool("abort-on-interrupt", true, "skip the remaining scripts after an interrupt")
	cmd.Flags().Bool("capture-output", false, "buffer script output and print it when the script ends")
	cmd.Flags().String("lock-file", "", "single-instance lock file (empty option disables locking)")
	cmd.Flags().String("metrics-file", "", "write Prometheus textfile metrics here")
	cmd.Flags().Bool("json", false, "print the run report as JSON")
	return cmd
}

// Run the preflight checks only
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check capabilities and database reachability without running scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			checker := preflight.NewChecker(preflight.InterpreterResolver{Interpreter: opts.InterpreterPath()})
			pre := checker.Run(cmd.Context(), cfg)

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Check", "Module", "Result", "Detail"})
			for _, st := range pre.Capabilities {
				tw.AppendRow(table.Row{st.Name, st.Module, passFail(st.Resolved), st.Detail})
			}
			if pre.DatabaseChecked {
				detail := ""
				if pre.Database != nil {
					detail = pre.Database.Error()
				}
				tw.AppendRow(table.Row{"database", cfg.Database().Driver, passFail(pre.Database == nil), detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
			if err := pre.Err(); err != nil {
				return fmt.Errorf("preflight: %w", err)
			}
			return nil
		},
	}
}

// List the fixed task list
func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the collection scripts in run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, _ := cmd.Flags().GetString("work-dir")
			if workDir == "" {
				workDir = core.DefaultOptions().WorkDir
			}
			for i, t := range runner.DefaultTasks(workDir) {
				state := "present"
				if _, err := os.Stat(t.Path); errors.Is(err, os.ErrNotExist) {
					state = "missing"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\t%s\n", i+1, t.ID, t.Timeout, state, t.Path)
			}
			return nil
		},
	}
}

// Print the resolved configuration
func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			db := cfg.Database()
			db.Password = core.Mask(db.Password)
			api := cfg.API()
			api.QuakeToken = core.Mask(api.QuakeToken)
			api.HotelsToken = core.Mask(api.HotelsToken)
			out := struct {
				Database core.DatabaseConfig `yaml:"database"`
				API      core.APIConfig      `yaml:"api"`
				Paths    core.PathConfig     `yaml:"paths"`
				Options  core.Options        `yaml:"options"`
			}{db, api, cfg.Paths(), opts}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func passFail(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAIL"
}
