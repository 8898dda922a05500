// Package historycmder provides the history command, listing recently
// answered questions from a running citysql server.
package historycmder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/citysql/pkg/chatclient"
	"github.com/papercomputeco/citysql/pkg/cliui"
	"github.com/papercomputeco/citysql/pkg/config"
	"github.com/papercomputeco/citysql/pkg/history"
	"github.com/papercomputeco/citysql/pkg/utils"
)

const questionWidth = 60

type historyCommander struct {
	target string
	limit  int
}

const historyLongDesc string = `List recently answered questions, newest first.

Examples:
  citysql history
  citysql history --limit 5`

const historyShortDesc string = "List recently answered questions"

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagTarget})
			cmder.target = v.GetString(config.Flags[config.FlagTarget].ViperKey)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Maximum number of entries to list")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, w io.Writer) error {
	entries, err := chatclient.New(c.target).History(ctx, c.limit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No questions answered yet.")
		return err
	}

	_, err = fmt.Fprint(w, Table(entries, time.Now()))
	return err
}

// Table lays entries out as a markdown table, with start times relative to
// now.
func Table(entries []*history.Entry, now time.Time) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			humanize.RelTime(e.StartedAt, now, "ago", "from now"),
			string(e.Kind),
			e.Outcome,
			cliui.FormatDuration(e.Duration),
			utils.Truncate(e.Question, questionWidth),
		})
	}
	return cliui.MarkdownTable([]string{"when", "kind", "outcome", "took", "question"}, rows)
}
