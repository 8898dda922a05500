package cities_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/citysql/pkg/cities"
)

var _ = Describe("CheckReadOnly", func() {
	DescribeTable("accepts read-only retrieval queries",
		func(query string) {
			Expect(cities.CheckReadOnly(query)).To(Succeed())
			Expect(cities.IsReadOnly(query)).To(BeTrue())
		},
		Entry("plain select", "SELECT name_en FROM cities"),
		Entry("lowercase with trailing semicolon", "select * from cities order by population desc;"),
		Entry("leading whitespace and comment", "  -- biggest first\n SELECT * FROM cities LIMIT 5;"),
		Entry("block comment", "/* top */ SELECT count(*) FROM cities"),
		Entry("common table expression", "WITH big AS (SELECT * FROM cities WHERE population > 1000000) SELECT country, count(*) FROM big GROUP BY country"),
		Entry("keyword inside a literal", "SELECT * FROM cities WHERE name_en = 'Drop; Delete'"),
		Entry("escaped quote in a literal", "SELECT * FROM cities WHERE name_en = 'Côte d''Ivoire'"),
		Entry("column named like a keyword prefix", "SELECT created_at_label, updated FROM cities"),
	)

	DescribeTable("rejects anything else before execution",
		func(query string) {
			err := cities.CheckReadOnly(query)
			Expect(err).To(MatchError(cities.ErrNotReadOnly))
			Expect(cities.IsReadOnly(query)).To(BeFalse())
		},
		Entry("empty", ""),
		Entry("only a comment", "-- nothing here"),
		Entry("insert", "INSERT INTO cities (name_en) VALUES ('x')"),
		Entry("delete", "DELETE FROM cities"),
		Entry("drop", "DROP TABLE cities"),
		Entry("stacked statements", "SELECT 1; DROP TABLE cities"),
		Entry("two selects", "SELECT 1; SELECT 2;"),
		Entry("data-modifying CTE", "WITH gone AS (DELETE FROM cities RETURNING *) SELECT * FROM gone"),
		Entry("select into", "SELECT * INTO backup FROM cities"),
		Entry("locking read", "SELECT * FROM cities FOR UPDATE"),
		Entry("set inside select", "SELECT set_config('x', 'y', false); SET ROLE admin"),
		Entry("statement hidden after a comment quote", "SELECT 1 -- it's\n; DROP TABLE cities; SELECT 'a'"),
		Entry("statement hidden by a dash in a literal", "SELECT '--' ; DROP TABLE cities"),
		Entry("unterminated literal", "SELECT 'open"),
		Entry("unterminated block comment", "SELECT 1 /* open"),
		Entry("backslash escape string", `SELECT E'\'' ; DROP TABLE cities`),
		Entry("dollar quoting", "SELECT $$; DROP TABLE cities; $$"),
		Entry("explain analyze", "EXPLAIN ANALYZE DELETE FROM cities"),
	)
})
