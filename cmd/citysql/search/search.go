// Package searchcmder provides the search command: one question, one
// rendered answer with the SQL behind it.
package searchcmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/citysql/api"
	"github.com/papercomputeco/citysql/pkg/chatclient"
	"github.com/papercomputeco/citysql/pkg/cliui"
	"github.com/papercomputeco/citysql/pkg/config"
)

type searchCommander struct {
	target string
	raw    bool
}

const searchLongDesc string = `Ask a running citysql server one question over /api/search.

The answer and the SQL the model ran are rendered as markdown when stdout is
a terminal. Use --raw to print the markdown source instead.

Examples:
  citysql search "Which country has the most cities over a million people?"
  citysql search --raw "Average population of cities in Europe" > answer.md`

const searchShortDesc string = "Ask one question and render the answer"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MinimumNArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print markdown without rendering it")

	return cmd
}

func (c *searchCommander) run(ctx context.Context, w io.Writer, question string) error {
	res, err := chatclient.New(c.target).Search(ctx, question)
	if err != nil {
		return err
	}

	content := FormatAnswer(res)
	if c.raw || !isTerminal(w) {
		_, err := fmt.Fprint(w, content)
		return err
	}

	rendered, err := cliui.RenderMarkdown(content)
	if err != nil {
		// Unstyled output beats no output.
		rendered = content
	}
	_, err = fmt.Fprint(w, rendered)
	return err
}

// FormatAnswer lays out a search response as markdown.
func FormatAnswer(res *api.SearchResponse) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(res.Result))
	b.WriteString("\n")
	if res.SQLQuery != nil && *res.SQLQuery != "" {
		b.WriteString("\n```sql\n")
		b.WriteString(strings.TrimSpace(*res.SQLQuery))
		b.WriteString("\n```\n")
	}
	return b.String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
