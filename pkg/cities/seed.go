package cities

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// SeedBatchSize is the number of rows written per INSERT statement.
const SeedBatchSize = 1000

const (
	dropTableSQL   = "DROP TABLE IF EXISTS cities"
	createTableSQL = `CREATE TABLE cities (
	id SERIAL PRIMARY KEY,
	popularity INTEGER,
	geoname_id INTEGER,
	name_en VARCHAR(255),
	country_code VARCHAR(10),
	population BIGINT,
	latitude DECIMAL(10, 6),
	longitude DECIMAL(10, 6),
	country VARCHAR(255),
	region VARCHAR(255),
	continent VARCHAR(255),
	code2 VARCHAR(10),
	code VARCHAR(10),
	province VARCHAR(255)
)`
)

// Columns lists the cities table's data columns in insert order.
var Columns = []string{
	"popularity", "geoname_id", "name_en", "country_code", "population",
	"latitude", "longitude", "country", "region", "continent", "code2", "code", "province",
}

// City is one row of the cities table.
type City struct {
	Popularity  int64
	GeonameID   int64
	NameEN      string
	CountryCode string
	Population  int64
	Latitude    float64
	Longitude   float64
	Country     string
	Region      string
	Continent   string
	Code2       string
	Code        string
	Province    string
}

func (c City) values() []any {
	return []any{
		c.Popularity, c.GeonameID, c.NameEN, c.CountryCode, c.Population,
		c.Latitude, c.Longitude, c.Country, c.Region, c.Continent, c.Code2, c.Code, c.Province,
	}
}

// CSVReader reads City records from a CSV file with a header row. Columns
// are matched by header name; unknown columns are ignored and missing ones
// take their zero value, as do numbers that fail to parse.
type CSVReader struct {
	r     *csv.Reader
	index map[string]int
}

// NewCSVReader reads the header row from r.
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv has no header row")
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return &CSVReader{r: cr, index: index}, nil
}

// Next returns the next non-empty record, or io.EOF.
func (c *CSVReader) Next() (City, error) {
	for {
		rec, err := c.r.Read()
		if err != nil {
			return City{}, err
		}
		if isBlank(rec) {
			continue
		}

		field := func(name string) string {
			i, ok := c.index[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		return City{
			Popularity:  parseInt(field("popularity")),
			GeonameID:   parseInt(field("geoname_id")),
			NameEN:      field("name_en"),
			CountryCode: field("country_code"),
			Population:  parseInt(field("population")),
			Latitude:    parseFloat(field("latitude")),
			Longitude:   parseFloat(field("longitude")),
			Country:     field("country"),
			Region:      field("region"),
			Continent:   field("continent"),
			Code2:       field("code2"),
			Code:        field("code"),
			Province:    field("province"),
		}, nil
	}
}

// Seed recreates the cities table and imports every record from src. The
// import runs in one transaction and is rolled back entirely on failure.
// It returns the number of rows inserted.
func Seed(ctx context.Context, db *sql.DB, src io.Reader, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	reader, err := NewCSVReader(src)
	if err != nil {
		return 0, err
	}

	if _, err := db.ExecContext(ctx, dropTableSQL); err != nil {
		return 0, fmt.Errorf("dropping cities table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return 0, fmt.Errorf("creating cities table: %w", err)
	}
	logger.Info("cities table created")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	count, err := importCities(ctx, tx, reader, logger)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("rollback failed", "err", rbErr)
		}
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	logger.Info("import completed", "total", count)
	return count, nil
}

func importCities(ctx context.Context, tx *sql.Tx, reader *CSVReader, logger *slog.Logger) (int, error) {
	count := 0
	batch := make([]City, 0, SeedBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		query, args := insertBatch(batch)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting batch at record %d: %w", count, err)
		}
		count += len(batch)
		batch = batch[:0]
		logger.Info("inserted records", "count", count)
		return nil
	}

	for {
		city, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading csv record: %w", err)
		}

		batch = append(batch, city)
		if len(batch) >= SeedBatchSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}

	if err := flush(); err != nil {
		return 0, err
	}
	return count, nil
}

// insertBatch builds one parameterized multi-row INSERT.
func insertBatch(batch []City) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO cities (")
	b.WriteString(strings.Join(Columns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*len(Columns))
	n := 1
	for i, city := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
		args = append(args, city.values()...)
	}
	return b.String(), args
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseInt(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// Values such as "1234.0" still carry a usable integer part.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
