package cities

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotReadOnly is returned for any statement that is not a single
// read-only retrieval query. Such statements never reach the database.
var ErrNotReadOnly = errors.New("only SELECT queries are allowed")

var (
	writeKeyword = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|UPSERT|DROP|ALTER|TRUNCATE|GRANT|REVOKE|CREATE|VACUUM|ANALYZE|COPY|SET|RESET|LOCK|CALL|DO|EXECUTE|PREPARE|DEALLOCATE|DISCARD|LISTEN|NOTIFY|REFRESH|REINDEX|CLUSTER|COMMENT|SECURITY|IMPORT|ATTACH|DETACH|PRAGMA)\b`)
	selectInto   = regexp.MustCompile(`(?i)\bINTO\b`)
	lockingRead  = regexp.MustCompile(`(?i)\bFOR\s+(UPDATE|SHARE|NO\s+KEY\s+UPDATE|KEY\s+SHARE)\b`)
	dollarQuote  = regexp.MustCompile(`\$[A-Za-z_]*\$`)
)

// CheckReadOnly returns nil when query is a single SELECT (or WITH ... SELECT)
// statement, optionally terminated by one semicolon, that cannot modify data.
// Anything else wraps ErrNotReadOnly.
func CheckReadOnly(query string) error {
	// Backslash escapes (E'...') would defeat the literal scan below.
	if strings.ContainsRune(query, '\\') {
		return fmt.Errorf("%w: backslashes are not permitted", ErrNotReadOnly)
	}

	bare, ok := blank(query)
	if !ok {
		return fmt.Errorf("%w: unterminated literal or comment", ErrNotReadOnly)
	}
	stmt := strings.TrimSpace(bare)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if stmt == "" {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}

	lower := strings.ToLower(stmt)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return fmt.Errorf("%w: statement must start with SELECT or WITH", ErrNotReadOnly)
	}
	if strings.Contains(stmt, ";") {
		return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}
	if dollarQuote.MatchString(stmt) {
		return fmt.Errorf("%w: dollar-quoted strings are not permitted", ErrNotReadOnly)
	}
	if kw := writeKeyword.FindString(stmt); kw != "" {
		return fmt.Errorf("%w: %s is not permitted", ErrNotReadOnly, strings.ToUpper(kw))
	}
	if selectInto.MatchString(stmt) {
		return fmt.Errorf("%w: SELECT INTO is not permitted", ErrNotReadOnly)
	}
	if lockingRead.MatchString(stmt) {
		return fmt.Errorf("%w: locking reads are not permitted", ErrNotReadOnly)
	}
	return nil
}

// IsReadOnly reports whether CheckReadOnly accepts query.
func IsReadOnly(query string) bool {
	return CheckReadOnly(query) == nil
}

// blank returns query with every string literal and quoted identifier
// replaced by an empty pair of quotes and every comment replaced by a space,
// so that keywords and semicolons can be searched without false matches.
// ok is false when a literal or block comment is left open.
func blank(query string) (string, bool) {
	var out strings.Builder
	out.Grow(len(query))

	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(query, i+1, c)
			if end < 0 {
				return "", false
			}
			out.WriteByte(c)
			out.WriteByte(c)
			i = end + 1
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				i = len(query)
			} else {
				i += end
			}
			out.WriteByte(' ')
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return "", false
			}
			out.WriteByte(' ')
			i += 2 + end + 2
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), true
}

// closingQuote returns the index of the quote closing a literal opened
// before start, treating a doubled quote as an escaped one.
func closingQuote(s string, start int, q byte) int {
	for i := start; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i
	}
	return -1
}
