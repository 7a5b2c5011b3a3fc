package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// String returns a column value as a string, or "" when unset.
func String(e Entity, field string) string {
	return cast.ToString(e.Record().Get(field))
}

// Int64 returns a column value as an int64, or 0 when unset.
func Int64(e Entity, field string) int64 {
	return cast.ToInt64(e.Record().Get(field))
}

// Float64 returns a column value as a float64, or 0 when unset.
func Float64(e Entity, field string) float64 {
	return cast.ToFloat64(e.Record().Get(field))
}

// Bool returns a column value as a bool, or false when unset.
func Bool(e Entity, field string) bool {
	return cast.ToBool(e.Record().Get(field))
}

// Time returns a column value as a time, or the zero time when unset.
func Time(e Entity, field string) time.Time {
	return cast.ToTime(e.Record().Get(field))
}

// Decimal returns a column value as a decimal, or zero when unset.
func Decimal(e Entity, field string) decimal.Decimal {
	switch v := e.Record().Get(field).(type) {
	case decimal.Decimal:
		return v
	case nil:
		return decimal.Zero
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.NewFromFloat(cast.ToFloat64(v))
	}
}
