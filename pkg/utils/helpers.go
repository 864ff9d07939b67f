package utils

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for date values.
const DateLayout = "2006-01-02"

// ParseValue guesses the type of a raw text cell: int, then float, then string.
// Blank cells come back as nil.
func ParseValue(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// ToFloat converts any numeric value (including json.Number and numeric strings) to float64.
func ToFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case []byte:
		return ToFloat(string(val))
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Float64 {
			return rv.Convert(reflect.TypeOf(float64(0))).Float(), true
		}
		return 0, false
	}
}

// ToInt converts v to int64. Floats are accepted only when they hold an integral value.
func ToInt(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		return floatToInt(val.Float64())
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i, true
		}
		return 0, false
	case []byte:
		return ToInt(string(val))
	default:
		f, ok := ToFloat(v)
		if !ok {
			return 0, false
		}
		return floatToInt(f, nil)
	}
}

func floatToInt(f float64, err error) (int64, bool) {
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToDate accepts time.Time values or strings in DateLayout / RFC3339.
func ToDate(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), true
	case string:
		s := strings.TrimSpace(val)
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), true
		}
		return time.Time{}, false
	case []byte:
		return ToDate(string(val))
	default:
		return time.Time{}, false
	}
}

// ToBool accepts bools, 0/1 integers and the usual textual spellings.
func ToBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return b, err == nil
	case []byte:
		return ToBool(string(val))
	default:
		i, ok := ToInt(v)
		if !ok || (i != 0 && i != 1) {
			return false, false
		}
		return i == 1, true
	}
}
