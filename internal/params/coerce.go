package params

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the textual form of the date parameter.
const DateLayout = "2006-01-02T15:04:05"

// Coerce converts v to the Go representation of t: float64 for TypeFloat,
// int for TypeInt and string for TypeString. Numeric strings are parsed for
// the numeric types. A nil v is returned unchanged.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case TypeFloat:
		f, err := toFloat(v)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &TypeMismatchError{Type: t, Value: v}
		}
		return f, nil

	case TypeInt:
		n, err := toInt(v)
		if err != nil {
			return nil, &TypeMismatchError{Type: t, Value: v}
		}
		return n, nil

	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case time.Time:
			return s.UTC().Format(DateLayout), nil
		case fmt.Stringer:
			return s.String(), nil
		}
		return nil, &TypeMismatchError{Type: t, Value: v}
	}

	return nil, &TypeMismatchError{Type: t, Value: v}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, err
		}
		return f, nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		if int64(int(n)) != n {
			return 0, fmt.Errorf("integer out of range: %d", n)
		}
		return int(n), nil
	case uint:
		if n > math.MaxInt {
			return 0, fmt.Errorf("integer out of range: %d", n)
		}
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return 0, fmt.Errorf("integer out of range: %d", n)
		}
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
		return 0, fmt.Errorf("not an integer: %q", n)
	}

	// Floats (and json.Number) are accepted only when integral.
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", v)
	}
	// float64(math.MaxInt) rounds up to 2^63, which int cannot hold.
	if f >= float64(math.MaxInt) || f < float64(math.MinInt) {
		return 0, fmt.Errorf("integer out of range: %v", v)
	}
	return int(f), nil
}
