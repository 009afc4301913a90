package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/agenthands/graphmerge/internal/batch"
	"github.com/agenthands/graphmerge/internal/errors"
	"github.com/agenthands/graphmerge/internal/orchestrator"
	"github.com/agenthands/graphmerge/internal/server"
	"github.com/agenthands/graphmerge/internal/steps"
	"github.com/agenthands/graphmerge/internal/validation"
)

// ErrAborted is returned when the confirmation prompt is declined.
var ErrAborted = errors.New("aborted")

func (a *App) runCommand() *cobra.Command {
	var (
		dryRun         bool
		yes            bool
		skipValidation bool
		resume         bool
		skip           []int
		reportFormat   string
		reportOut      string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the consolidation steps in order",
		Example: `  graphmerge run --dry-run
  graphmerge run --yes --skip-step 5 --report-format json --report-out report.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := validation.ParseFormat(reportFormat)
			if err != nil {
				return errors.NewConfigError("report", "bad --report-format", err)
			}
			ctx := cmd.Context()

			rt, err := a.connect(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer a.closeRuntime(rt)

			if !dryRun {
				if !yes {
					ok, err := a.confirm(fmt.Sprintf("Consolidate records in %s? This rewrites the graph.", rt.Target))
					if err != nil {
						return err
					}
					if !ok {
						return ErrAborted
					}
				}
				if rt.Prepare != nil {
					if err := rt.Prepare(ctx); err != nil {
						return fmt.Errorf("failed to prepare schema: %w", err)
					}
				}
			}

			o, _ := a.newOrchestrator(rt, dryRun)
			res, runErr := o.Run(ctx, orchestrator.Options{
				DryRun:         dryRun,
				Skip:           append(append([]int(nil), a.cfg.Steps.Skip...), skip...),
				Resume:         resume,
				SkipValidation: skipValidation,
				BatchSize:      a.cfg.Batch.Size,
			})
			if res != nil {
				a.logSummary(res)
				if res.Report != nil {
					if err := a.writeReport(res.Report, format, reportOut); err != nil && runErr == nil {
						runErr = err
					}
				}
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.BoolVar(&dryRun, "dry-run", false, "plan every step but write nothing")
	f.BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	f.BoolVar(&skipValidation, "skip-validation", false, "do not validate after the run")
	f.BoolVar(&resume, "resume", false, "skip steps the tracking record lists as completed")
	f.Int("batch-size", 0, "units per write transaction (overrides [batch] size)")
	f.IntSliceVar(&skip, "skip-step", nil, "1-based index of a step to skip (repeatable)")
	f.StringVar(&reportFormat, "report-format", "table", "report format: json, yaml, table")
	f.StringVar(&reportOut, "report-out", "", "write the report to this file instead of stdout")
	return cmd
}

func (a *App) validateCommand() *cobra.Command {
	var reportFormat, reportOut string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the graph against the fully consolidated end state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := validation.ParseFormat(reportFormat)
			if err != nil {
				return errors.NewConfigError("report", "bad --report-format", err)
			}
			ctx := cmd.Context()

			rt, err := a.connect(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer a.closeRuntime(rt)

			_, v := a.newOrchestrator(rt, true)
			report, err := v.Validate(ctx, nil, Expectations(steps.Registry()))
			if err != nil {
				return err
			}
			if err := a.writeReport(report, format, reportOut); err != nil {
				return err
			}
			if !report.Passed {
				return fmt.Errorf("%w: %d check(s) failed", errors.ErrValidation, len(report.Failed()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reportFormat, "report-format", "table", "report format: json, yaml, table")
	cmd.Flags().StringVar(&reportOut, "report-out", "", "write the report to this file instead of stdout")
	return cmd
}

func (a *App) stepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the consolidation steps in run order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := tablewriter.NewTable(a.out)
			table.Header("#", "Step")
			for i, s := range steps.Registry() {
				if err := table.Append(fmt.Sprint(i+1), s.Name()); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

func (a *App) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve steps, validation reports and dry-run plans over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.connect(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer a.closeRuntime(rt)

			o, v := a.newOrchestrator(rt, true)
			srv := server.NewServer(server.Deps{
				Graph:        rt.Graph,
				Source:       rt.Source,
				Orchestrator: o,
				Validator:    v,
				Expect:       Expectations(o.Steps()),
				Logger:       a.logger,
			})
			httpServer := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           srv.SetupRouter(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", httpServer.Addr).Msg("serving")
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("server stopped: %w", err)
				}
				return nil
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
		},
	}
}

func (a *App) newOrchestrator(rt *Runtime, dryRun bool) (*orchestrator.Orchestrator, *validation.Validator) {
	b := a.cfg.Batch
	engine := batch.New(rt.Graph, batch.Options{
		MaxAttempts:    b.MaxAttempts,
		AttemptTimeout: b.AttemptTimeout.Duration,
		Backoff:        batch.ExponentialBackoff{Base: b.BaseDelay.Duration, Max: b.MaxDelay.Duration, JitterFrac: 0.2},
		DryRun:         dryRun,
		Logger:         a.logger,
	})
	v := validation.New(rt.Graph, validation.Options{EdgeTypes: steps.TrackedEdgeTypes()}, a.logger)
	env := &orchestrator.Env{
		Graph:  rt.Graph,
		Engine: engine,
		Source: rt.Source,
		Logger: a.logger,
	}
	return orchestrator.New(steps.Registry(), env, v), v
}

// Expectations is the end state once every step in list has completed.
func Expectations(list []orchestrator.Step) validation.Expectations {
	var exp validation.Expectations
	for _, s := range list {
		if e, ok := s.(orchestrator.Expecter); ok {
			e.Expect(&exp)
		}
	}
	return exp
}

func (a *App) confirm(prompt string) (bool, error) {
	fmt.Fprintf(a.out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (a *App) writeReport(r *validation.Report, format validation.Format, path string) error {
	if path == "" {
		return validation.Render(a.out, r, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file '%s': %w", path, err)
	}
	defer f.Close()
	if err := validation.Render(f, r, format); err != nil {
		return err
	}
	a.logger.Info().Str("path", path).Msg("report written")
	return nil
}

func (a *App) logSummary(res *orchestrator.RunResult) {
	for _, s := range res.Steps {
		ev := a.logger.Info().Int("step", s.Index).Str("name", s.Name)
		if s.Skipped {
			ev.Str("skipped", s.SkipReason).Msg("step summary")
			continue
		}
		ev.Int("units", s.Stats.Units).
			Int("ops", s.Stats.Ops).
			Int("retries", s.Stats.Retries).
			Dur("elapsed", s.Elapsed).
			Msg("step summary")
	}
	a.logger.Info().
		Int("completed", res.Completed).
		Bool("dry_run", res.DryRun).
		Dur("elapsed", res.Elapsed).
		Msg("run finished")
}

func (a *App) closeRuntime(rt *Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Close(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close connections")
	}
}
