package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Literal renders v as SQL text: strings and dates quoted, booleans as 1/0,
// floats with '.' as decimal separator.
func Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(x)
	case []byte:
		return quote(string(x))
	case time.Time:
		return quote(x.Format("2006-01-02 15:04:05"))
	case bool:
		if x {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case decimal.Decimal:
		return x.String()
	case uuid.UUID:
		return quote(x.String())
	case fmt.Stringer:
		return quote(x.String())
	default:
		return fmt.Sprint(x)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// literalParams is a ParamBuilder that splices values into the text.
type literalParams struct {
	n int
}

func (p *literalParams) Add(v any) string {
	p.n++
	return Literal(v)
}

func (p *literalParams) Params() []any { return nil }
func (p *literalParams) Count() int    { return p.n }
