package agent

import (
	"fmt"
	"strings"
)

// Schema describes the cities table to the model.
const Schema = `CREATE TABLE cities (
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
);`

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a SQL assistant for a PostgreSQL database holding one table of world cities.\n\n")
	fmt.Fprintf(&b, "Schema:\n%s\n\n", Schema)
	b.WriteString(`When the user asks a question:
- Write a single read-only SELECT query that answers it. Only SELECT statements are allowed.
- Run it with the ` + ToolName + ` tool before answering. If it fails, fix the query and try again.
- Use ILIKE for case-insensitive name matches and add LIMIT 100 unless the user asks for everything.
- Reply with the SQL you ran (terminated by a semicolon), then the result, then a short explanation.
- If the question is not about cities, say so briefly instead of writing SQL.`)
	return b.String()
}
