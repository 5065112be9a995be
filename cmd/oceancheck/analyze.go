package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/oceancheck/internal/dumpparse"
	"github.com/dshills/oceancheck/internal/exa"
	"github.com/dshills/oceancheck/internal/llm"
	"github.com/dshills/oceancheck/internal/render"
	"github.com/dshills/oceancheck/internal/schema"
	"github.com/dshills/oceancheck/internal/store"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <user>...",
		Short: "Fetch, parse and score one or more X users, saving a report for each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd.Context(), args)
		},
	}
}

func (a *app) runAnalyze(ctx context.Context, users []string) error {
	for i, u := range users {
		users[i] = exa.CleanUsername(u)
		if users[i] == "" {
			return exitWith(exitCodeBadInput, errors.New("username cannot be empty"))
		}
	}
	client, err := a.exaClient()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := a.log.With(zap.String("run_id", runID))
	parser := dumpparse.New(dumpparse.DefaultGrammar(), dumpparse.WithLogger(log))

	reports := make([]*schema.Report, len(users))
	paths := make([]string, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, user := range users {
		g.Go(func() error {
			r, err := a.analyzeUser(gctx, client, parser, log.With(zap.String("user", user)), runID, user)
			if err != nil {
				return err
			}
			path, err := store.Save(a.cfg.OutDir, r)
			if err != nil {
				return exitWith(exitCodeError, err)
			}
			reports[i], paths[i] = r, path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	saved := color.New(color.FgGreen)
	for i, r := range reports {
		if err := a.printReport(r); err != nil {
			return err
		}
		saved.Fprintf(a.errOut, "saved @%s -> %s\n", r.Username, paths[i])
	}
	return nil
}

// analyzeUser runs fetch, parse and model scoring for one user.
func (a *app) analyzeUser(
	ctx context.Context,
	client *exa.Client,
	parser *dumpparse.Parser,
	log *zap.Logger,
	runID, user string,
) (*schema.Report, error) {
	log.Info("fetching profile")
	raw, err := client.FetchProfileText(ctx, user)
	if err != nil {
		return nil, exitWith(exitCodeAPIError, err)
	}

	dump, err := parser.Parse(raw)
	if err != nil {
		return nil, exitWith(exitCodeError, fmt.Errorf("@%s: %w", user, err))
	}
	if len(dump.Posts) == 0 {
		return nil, exitWith(exitCodeAPIError, fmt.Errorf("@%s: profile has no posts to analyse", user))
	}
	log.Info("profile parsed", zap.Int("posts", len(dump.Posts)))

	assessment, err := llm.Analyze(ctx, user, dump, a.llmOptions(log))
	if err != nil {
		return nil, modelError(fmt.Errorf("@%s: %w", user, err))
	}

	postCount := len(dump.Posts)
	if postCount > a.cfg.MaxPosts {
		postCount = a.cfg.MaxPosts
	}
	return &schema.Report{
		Tool:       toolName,
		Version:    version,
		RunID:      runID,
		Username:   user,
		ProfileURL: exa.ProfileURL(user),
		Profile:    dump.Profile,
		PostCount:  postCount,
		Analysis:   *assessment,
		Meta:       a.meta(),
	}, nil
}

func (a *app) meta() schema.Meta {
	return schema.Meta{
		Provider:    a.cfg.Provider,
		Model:       a.modelName(),
		Temperature: a.cfg.Temperature,
		GeneratedAt: a.now().UTC(),
	}
}

func (a *app) printReport(r *schema.Report) error {
	if a.format == "json" {
		b, err := render.RenderJSON(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, string(b))
		return nil
	}
	fmt.Fprint(a.out, render.RenderMarkdown(r))
	return nil
}
