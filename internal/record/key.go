package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// KeyString renders a natural-key value as its canonical string: trimmed and
// NFC-normalized. Integral floats lose their fractional part, so a key read
// back as 12345.0 compares equal to "12345". Missing values render as "".
func KeyString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return norm.NFC.String(strings.TrimSpace(val))
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := val.Float64(); err == nil {
			return formatKeyFloat(f)
		}
		return strings.TrimSpace(val.String())
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return formatKeyFloat(float64(val))
	case float64:
		return formatKeyFloat(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return norm.NFC.String(strings.TrimSpace(fmt.Sprint(val)))
	}
}

func formatKeyFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// PadKey left-pads a key with zeros to width. Used for registries whose
// identifiers were once imported as integers and lost leading zeros.
func PadKey(key string, width int) string {
	if key == "" || len(key) >= width {
		return key
	}
	return strings.Repeat("0", width-len(key)) + key
}
