// Package configcmder provides the config command for managing persistent
// citysql configuration stored in the .citysql/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/citysql/pkg/cliui"
	"github.com/papercomputeco/citysql/pkg/config"
)

const configLongDesc string = `Manage persistent citysql configuration.

Configuration is stored as config.toml in the .citysql/ directory and provides
default values for command flags. CLI flags and CITYSQL_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, e.g.
  server.listen, database.dsn, agent.model, relay.session_timeout,
  history.provider, client.target

Use subcommands to get, set, or list configuration values:
  citysql config set <key> <value>    Set a configuration value
  citysql config get <key>            Get a configuration value
  citysql config list                 List all configuration values

Examples:
  citysql config set agent.model gpt-4o
  citysql config set relay.session_timeout 45s
  citysql config get database.dsn
  citysql config list`

const configShortDesc string = "Manage persistent citysql configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

// display masks secrets unless reveal is set.
func display(key, value string, reveal bool) string {
	if value == "" || reveal || !config.IsSecretKey(key) {
		return value
	}
	return "********"
}
