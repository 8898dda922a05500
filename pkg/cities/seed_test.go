package cities_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/citysql/pkg/cities"
	"github.com/papercomputeco/citysql/pkg/logger"
)

const csvHeader = "popularity,geoname_id,name_en,country_code,population,latitude,longitude,country,region,continent,code2,code,province\n"

var _ = Describe("CSVReader", func() {
	It("maps columns by header name and defaults bad numbers to zero", func() {
		src := "name_en, population ,latitude,unused\n" +
			"Tokyo,37400068,35.6895,x\n" +
			"\n" +
			"Atlantis,unknown,n/a,y\n"
		r, err := cities.NewCSVReader(strings.NewReader(src))
		Expect(err).NotTo(HaveOccurred())

		c, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(c.NameEN).To(Equal("Tokyo"))
		Expect(c.Population).To(Equal(int64(37400068)))
		Expect(c.Latitude).To(BeNumerically("~", 35.6895, 1e-9))
		Expect(c.Country).To(BeEmpty())

		c, err = r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(c.NameEN).To(Equal("Atlantis"))
		Expect(c.Population).To(BeZero())
		Expect(c.Latitude).To(BeZero())

		_, err = r.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("fails without a header row", func() {
		_, err := cities.NewCSVReader(strings.NewReader(""))
		Expect(err).To(MatchError(ContainSubstring("no header")))
	})
})

var _ = Describe("Seed", func() {
	var (
		db   *sql.DB
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		var err error
		db, mock, err = sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		db.Close()
	})

	expectSchema := func() {
		mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS cities")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE cities (")).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	It("recreates the table and inserts rows with bound parameters", func() {
		src := csvHeader + "9,1850147,Tokyo,JP,37400068,35.6895,139.69171,Japan,Kanto,Asia,JP,JPN,Tokyo\n"

		expectSchema()
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cities (popularity, geoname_id, name_en, country_code, population, latitude, longitude, country, region, continent, code2, code, province) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)")).
			WithArgs(int64(9), int64(1850147), "Tokyo", "JP", int64(37400068), 35.6895, 139.69171, "Japan", "Kanto", "Asia", "JP", "JPN", "Tokyo").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		n, err := cities.Seed(ctx, db, strings.NewReader(src), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("writes in batches of SeedBatchSize inside one transaction", func() {
		var b strings.Builder
		b.WriteString(csvHeader)
		total := cities.SeedBatchSize + 5
		for i := range total {
			fmt.Fprintf(&b, "1,%d,City %d,XX,%d,0,0,Nowhere,,,,,\n", i, i, i*10)
		}

		expectSchema()
		mock.ExpectBegin()
		mock.ExpectExec("^INSERT INTO cities").WillReturnResult(sqlmock.NewResult(0, int64(cities.SeedBatchSize)))
		mock.ExpectExec("^INSERT INTO cities").WillReturnResult(sqlmock.NewResult(0, 5))
		mock.ExpectCommit()

		n, err := cities.Seed(ctx, db, strings.NewReader(b.String()), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(total))
	})

	It("rolls back the whole import when a batch fails", func() {
		src := csvHeader + "1,2,Lima,PE,9751000,-12.04,-77.03,Peru,Lima,South America,PE,PER,Lima\n"

		expectSchema()
		mock.ExpectBegin()
		mock.ExpectExec("^INSERT INTO cities").WillReturnError(errors.New("value too long"))
		mock.ExpectRollback()

		_, err := cities.Seed(ctx, db, strings.NewReader(src), logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("value too long")))
	})

	It("does not touch the database when the csv has no header", func() {
		_, err := cities.Seed(ctx, db, strings.NewReader(""), logger.Nop())
		Expect(err).To(HaveOccurred())
	})
})
