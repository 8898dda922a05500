package agent

import (
	"regexp"
	"strings"
)

var selectStatement = regexp.MustCompile(`(?i)SELECT[\s\S]*?;`)

// ExtractSQL returns the first SELECT statement, up to and including its
// semicolon, found in a model answer. It returns "" when there is none.
func ExtractSQL(text string) string {
	return strings.TrimSpace(selectStatement.FindString(stripMarkdownSQL(text)))
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
