// Package citysqlcmder is the root citysql command.
package citysqlcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/citysql/cmd/citysql/chat"
	configcmder "github.com/papercomputeco/citysql/cmd/citysql/config"
	historycmder "github.com/papercomputeco/citysql/cmd/citysql/history"
	searchcmder "github.com/papercomputeco/citysql/cmd/citysql/search"
	seedcmder "github.com/papercomputeco/citysql/cmd/citysql/seed"
	servecmder "github.com/papercomputeco/citysql/cmd/citysql/serve"
	versioncmder "github.com/papercomputeco/citysql/cmd/version"
)

const citysqlLongDesc string = `citysql answers natural-language questions about a table of world cities.

A hosted model turns each question into read-only SQL, runs it against
PostgreSQL and streams its answer back as server-sent events.

Run the server, then ask from the terminal:
  citysql seed --csv cities.csv    Load the cities table
  citysql serve                    Run the HTTP server
  citysql chat                     Ask questions interactively
  citysql search "<question>"      Ask once and render the answer`

const citysqlShortDesc string = "citysql - ask your cities table in plain English"

func NewCitysqlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "citysql",
		Short:         citysqlShortDesc,
		Long:          citysqlLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.citysql or ~/.citysql)")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
