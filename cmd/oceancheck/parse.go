package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/oceancheck/internal/dumpparse"
)

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Parse a raw profile dump and print the outcome as JSON",
		Long: `Parse reads a raw profile dump from a file, or from stdin when the
argument is "-" or omitted, and prints {"success", "data", "error"}.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			return a.runParse(cmd.InOrStdin(), src)
		},
	}
}

func (a *app) runParse(stdin io.Reader, src string) error {
	var (
		raw []byte
		err error
	)
	if src == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(src)
	}
	if err != nil {
		return exitWith(exitCodeBadInput, fmt.Errorf("read dump: %w", err))
	}

	parser := dumpparse.New(dumpparse.DefaultGrammar(), dumpparse.WithLogger(a.log))
	outcome := parser.Try(string(raw))

	b, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	fmt.Fprintln(a.out, string(b))

	if !outcome.Success {
		return exitWith(exitCodeError, nil)
	}
	return nil
}
