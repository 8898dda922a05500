// Package chatcmder provides the chat command for asking a running citysql
// server questions from the terminal.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/citysql/pkg/chatclient"
	"github.com/papercomputeco/citysql/pkg/cliui"
	"github.com/papercomputeco/citysql/pkg/config"
	"github.com/papercomputeco/citysql/pkg/logger"
	"github.com/papercomputeco/citysql/pkg/sse"
)

var (
	userPrompt      = cliui.PromptStyle.Render("you> ")
	assistantPrompt = cliui.AnswerStyle.Render("citysql> ")
)

type chatCommander struct {
	target string
	debug  bool

	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	interactive bool

	client *chatclient.Client
}

const chatLongDesc string = `Ask a running citysql server questions about the cities table.

Each line read from stdin is sent to the server's /api/chat endpoint and the
answer is printed as it streams in. A question given as arguments is asked
once and the command exits. With --debug the raw event stream is copied to
stderr.

Examples:
  citysql chat
  citysql chat "Which five cities in Japan have the largest population?"
  echo "How many cities are in Africa?" | citysql chat --target http://localhost:3000`

const chatShortDesc string = "Ask a running citysql server questions"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
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
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			if f, ok := cmder.in.(*os.File); ok {
				cmder.interactive = term.IsTerminal(int(f.Fd()))
			}

			ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt)
			defer stop()

			if len(args) > 0 {
				return cmder.ask(ctx, strings.Join(args, " "))
			}
			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)

	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (c *chatCommander) newClient() *chatclient.Client {
	if c.client == nil {
		c.client = chatclient.New(c.target,
			chatclient.WithLogger(logger.New(
				logger.WithDebug(c.debug),
				logger.WithPretty(true),
				logger.WithWriter(os.Stderr),
			)),
		)
	}
	return c.client
}

func (c *chatCommander) run(ctx context.Context) error {
	if c.interactive {
		fmt.Fprintf(c.out, "\n  %s %s\n", cliui.KeyStyle.Render("Server:"), cliui.ValueStyle.Render(c.target))
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type a question and press Enter. /exit or Ctrl+D to quit."))
	}

	scanner := bufio.NewScanner(c.in)
	for {
		if c.interactive {
			fmt.Fprint(c.out, userPrompt)
		}
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "/exit" {
			break
		}

		if err := c.ask(ctx, question); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(c.out, "  %s %v\n", cliui.FailMark, err)
		}
		if c.interactive {
			fmt.Fprintln(c.out)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// ask streams the answer to question to c.out.
func (c *chatCommander) ask(ctx context.Context, question string) error {
	var opts []sse.DecoderOption
	if c.debug && c.errOut != nil {
		opts = append(opts, sse.WithTee(c.errOut))
	}

	dec, err := c.newClient().Stream(ctx, question, opts...)
	if err != nil {
		return err
	}
	defer dec.Close()

	if c.interactive {
		fmt.Fprint(c.out, assistantPrompt)
	}
	_, err = printStream(c.out, dec)
	fmt.Fprintln(c.out)

	var perr *sse.ProtocolError
	if errors.As(err, &perr) {
		return fmt.Errorf("%s", cliui.ErrorStyle.Render(perr.Message))
	}
	return err
}

// printStream writes each cumulative update as the suffix not yet printed
// and returns the final message. io.EOF is a clean end and is not returned.
func printStream(w io.Writer, dec *sse.Decoder) (string, error) {
	printed := ""
	for {
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return printed, nil
		}
		if err != nil {
			return printed, err
		}

		if rest, ok := strings.CutPrefix(msg, printed); ok {
			fmt.Fprint(w, rest)
		} else {
			// The answer was rewritten rather than extended.
			fmt.Fprint(w, "\n"+msg)
		}
		printed = msg
	}
}
