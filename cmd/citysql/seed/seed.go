// Package seedcmder provides the seed command, which (re)creates the cities
// table from a CSV export.
package seedcmder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/citysql/pkg/cities"
	"github.com/papercomputeco/citysql/pkg/cliui"
	"github.com/papercomputeco/citysql/pkg/config"
	"github.com/papercomputeco/citysql/pkg/logger"
)

const seedLongDesc string = `Seed the cities table from a CSV file.

The table is dropped and recreated, then every CSV row is imported in one
transaction. The CSV must have a header row; columns are matched by name:
  popularity, geoname_id, name_en, country_code, population, latitude,
  longitude, country, region, continent, code2, code, province

Use "-" to read the CSV from stdin.

Examples:
  citysql seed --csv cities.csv
  citysql seed --csv cities.csv --dsn postgres://localhost:5432/cities
  gunzip -c cities.csv.gz | citysql seed --csv -`

const seedShortDesc string = "Seed the cities table from CSV"

type seedCommander struct {
	csvPath string
	dsn     string
	debug   bool

	// open is swapped in tests.
	open func(ctx context.Context, dsn string) (*sql.DB, error)
}

func NewSeedCmd() *cobra.Command {
	return newSeedCmd(&seedCommander{open: openCities})
}

func newSeedCmd(cmder *seedCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: seedShortDesc,
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagDSN})
			cmder.dsn = v.GetString(config.Flags[config.FlagDSN].ViperKey)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.csvPath, "csv", "", `Path to the cities CSV file ("-" for stdin)`)
	_ = cmd.MarkFlagRequired("csv")
	config.AddStringFlag(cmd, config.Flags, config.FlagDSN, &cmder.dsn)

	return cmd
}

func openCities(ctx context.Context, dsn string) (*sql.DB, error) {
	return cities.Open(ctx, dsn, cities.DefaultPoolConfig())
}

func (c *seedCommander) run(ctx context.Context, stdin io.Reader, w io.Writer) error {
	src, closeSrc, err := c.source(stdin)
	if err != nil {
		return err
	}
	defer closeSrc()

	db, err := c.open(ctx, c.dsn)
	if err != nil {
		return fmt.Errorf("connecting to cities database: %w", err)
	}
	defer db.Close()

	// Progress logs would interleave with the spinner unless debugging.
	var log *slog.Logger
	if c.debug {
		log = logger.New(logger.WithDebug(true), logger.WithPretty(true), logger.WithWriter(os.Stderr))
	}

	var count int
	if err := cliui.Step(w, "Importing cities", func() error {
		var seedErr error
		count, seedErr = cities.Seed(ctx, db, src, log)
		return seedErr
	}); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Seeded %s cities\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(humanize.Comma(int64(count))),
	)
	return nil
}

func (c *seedCommander) source(stdin io.Reader) (io.Reader, func(), error) {
	if c.csvPath == "-" {
		return stdin, func() {}, nil
	}
	if c.csvPath == "" {
		return nil, nil, errors.New("a CSV file is required (--csv)")
	}

	f, err := os.Open(c.csvPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening CSV: %w", err)
	}
	return f, func() { f.Close() }, nil
}
