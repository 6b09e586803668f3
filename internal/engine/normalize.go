package engine

import (
	"math"
	"reflect"
	"time"

	"github.com/ai4data/dazense/internal/dataset"
)

// Normalize unwraps backend-native scalar types into portable values:
// integers widen to int64, floats to float64, byte slices become
// strings, and array-like cells become []any of normalized elements.
// Anything else passes through unchanged.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64, float64, string, bool, time.Time:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case []any:
		out := make([]any, len(x))
		for i, elem := range x {
			out[i] = Normalize(elem)
		}
		return out
	}

	// Driver-specific slice types (e.g. pgtype arrays decoded to typed
	// slices) flatten element by element.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

// normalizeUint keeps unsigned values that exceed the int64 range from
// wrapping negative; they widen to float64 instead.
func normalizeUint(v uint64) any {
	if v > math.MaxInt64 {
		return float64(v)
	}
	return int64(v)
}

// NormalizeRows normalizes every cell of every row in place and
// returns rows for convenience.
func NormalizeRows(rows []dataset.Row) []dataset.Row {
	for _, row := range rows {
		for col, v := range row {
			row[col] = Normalize(v)
		}
	}
	return rows
}
