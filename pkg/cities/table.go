package cities

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// NotAvailable stands in for NULL values in formatted tables.
const NotAvailable = "N/A"

// TableData is a display-ready table: every cell is a string.
type TableData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// NewTableData formats res for display. The id column is dropped, NULLs
// become NotAvailable and numbers are grouped by thousands.
func NewTableData(res *Result) TableData {
	keep := make([]int, 0, len(res.Columns))
	headers := make([]string, 0, len(res.Columns))
	for i, col := range res.Columns {
		if strings.EqualFold(col, "id") {
			continue
		}
		keep = append(keep, i)
		headers = append(headers, col)
	}

	rows := make([][]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		cells := make([]string, 0, len(keep))
		for _, i := range keep {
			cells = append(cells, FormatValue(row[i]))
		}
		rows = append(rows, cells)
	}

	return TableData{Headers: headers, Rows: rows}
}

// FormatValue renders a single database value.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return NotAvailable
	case int64:
		return humanize.Comma(x)
	case int:
		return humanize.Comma(int64(x))
	case int32:
		return humanize.Comma(int64(x))
	case int16:
		return humanize.Comma(int64(x))
	case int8:
		return humanize.Comma(int64(x))
	case uint8:
		return humanize.Comma(int64(x))
	case uint16:
		return humanize.Comma(int64(x))
	case uint32:
		return humanize.Comma(int64(x))
	case uint:
		return humanize.BigComma(new(big.Int).SetUint64(uint64(x)))
	case uint64:
		return humanize.BigComma(new(big.Int).SetUint64(x))
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// formatFloat rounds to at most three fraction digits and groups the integer
// part.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 3, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")

	intPart, frac, hasFrac := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	n, err := strconv.ParseInt(strings.TrimPrefix(intPart, "-"), 10, 64)
	if err != nil {
		return s
	}

	out := humanize.Comma(n)
	// Values that round to zero lose their sign.
	if neg && (n != 0 || hasFrac) {
		out = "-" + out
	}
	if hasFrac {
		out += "." + frac
	}
	return out
}
