package persistence

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"rowgraph/internal/metadata"
	"rowgraph/internal/store"
)

// coerce converts a value read from a driver to the Go type of t. Drivers
// differ in what they return: sqlite hands back booleans as 0/1 and decimals
// as floats or text, mysql returns TEXT as bytes.
func coerce(v any, t metadata.FieldType) (any, error) {
	if b, ok := v.([]byte); ok && t != metadata.TypeUUID {
		v = string(b)
	}
	switch t {
	case metadata.TypeString:
		return cast.ToStringE(v)
	case metadata.TypeInt:
		return cast.ToInt64E(v)
	case metadata.TypeFloat:
		return cast.ToFloat64E(v)
	case metadata.TypeBool:
		return cast.ToBoolE(v)
	case metadata.TypeTime:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			if tm, ok := store.ParseTime(x); ok {
				return tm, nil
			}
		}
		return cast.ToTimeE(v)
	case metadata.TypeDecimal:
		switch x := v.(type) {
		case decimal.Decimal:
			return x, nil
		case string:
			return decimal.NewFromString(x)
		case float64:
			return decimal.NewFromFloat(x), nil
		case float32:
			return decimal.NewFromFloat32(x), nil
		default:
			n, err := cast.ToInt64E(v)
			if err != nil {
				return nil, err
			}
			return decimal.NewFromInt(n), nil
		}
	case metadata.TypeUUID:
		switch x := v.(type) {
		case uuid.UUID:
			return x, nil
		case string:
			return uuid.Parse(x)
		case []byte:
			if len(x) == 16 {
				return uuid.FromBytes(x)
			}
			return uuid.ParseBytes(x)
		}
		return nil, fmt.Errorf("cannot convert %T to uuid", v)
	}
	return v, nil
}

// zeroValue is the value a check sees for an unset field of type t.
func zeroValue(t metadata.FieldType) any {
	switch t {
	case metadata.TypeString, metadata.TypeUUID:
		return ""
	case metadata.TypeInt:
		return int64(0)
	case metadata.TypeFloat, metadata.TypeDecimal:
		return 0.0
	case metadata.TypeBool:
		return false
	case metadata.TypeTime:
		return time.Time{}
	}
	return nil
}
