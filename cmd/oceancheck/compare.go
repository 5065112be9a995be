package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/oceancheck/internal/llm"
	"github.com/dshills/oceancheck/internal/render"
	"github.com/dshills/oceancheck/internal/schema"
	"github.com/dshills/oceancheck/internal/score"
	"github.com/dshills/oceancheck/internal/store"
)

func newCompareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <user|file> <user|file>",
		Short: "Compare two saved reports for couple compatibility",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCompare(cmd.Context(), args[0], args[1])
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved reports",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.runList()
		},
	}
}

func (a *app) runCompare(ctx context.Context, refA, refB string) error {
	ra, err := a.loadScored(refA)
	if err != nil {
		return err
	}
	rb, err := a.loadScored(refB)
	if err != nil {
		return err
	}
	if ra.Username == rb.Username {
		return exitWith(exitCodeBadInput, fmt.Errorf("cannot compare @%s with itself", ra.Username))
	}

	runID := uuid.NewString()
	log := a.log.With(zap.String("run_id", runID))
	oa, ob := *ra.Analysis.OCEAN, *rb.Analysis.OCEAN
	local := score.Compatibility(oa, ob)
	log.Info("local compatibility", zap.Int("score", local))

	model, err := llm.Compare(ctx, ra, rb, a.llmOptions(log))
	if err != nil {
		return modelError(err)
	}

	report := &schema.CompatibilityReport{
		Tool:       toolName,
		Version:    version,
		RunID:      runID,
		Users:      []string{ra.Username, rb.Username},
		Scores:     []schema.OCEAN{oa, ob},
		LocalScore: local,
		LocalLabel: score.Label(local),
		Deltas:     score.Deltas(oa, ob),
		Model:      *model,
		Meta:       a.meta(),
	}
	path, err := store.SaveCompatibility(a.cfg.OutDir, report)
	if err != nil {
		return exitWith(exitCodeError, err)
	}

	if a.format == "json" {
		b, err := render.RenderCompatibilityJSON(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, string(b))
	} else {
		fmt.Fprint(a.out, render.RenderCompatibilityMarkdown(report))
	}
	labelColor(report.LocalLabel).Fprintf(a.errOut, "@%s & @%s: %d/100 %s -> %s\n",
		ra.Username, rb.Username, local, report.LocalLabel, path)
	return nil
}

// loadScored loads a saved report and checks that it carries scores.
func (a *app) loadScored(ref string) (*schema.Report, error) {
	r, err := store.Load(store.Resolve(a.cfg.OutDir, ref))
	if err != nil {
		return nil, exitWith(exitCodeBadInput, err)
	}
	if r.Analysis.OCEAN == nil {
		return nil, exitWith(exitCodeBadInput, errors.New("report for @"+r.Username+" has no OCEAN scores"))
	}
	return r, nil
}

func labelColor(label string) *color.Color {
	switch label {
	case score.LabelHigh:
		return color.New(color.FgGreen)
	case score.LabelModerate:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func (a *app) runList() error {
	names, err := store.List(a.cfg.OutDir)
	if err != nil {
		return exitWith(exitCodeError, err)
	}
	if len(names) == 0 {
		color.New(color.FgHiBlack).Fprintf(a.errOut, "no saved reports in %s\n", a.cfg.OutDir)
		return nil
	}
	for _, n := range names {
		fmt.Fprintln(a.out, n)
	}
	return nil
}
