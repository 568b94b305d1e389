package keyvar

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrConversion indicates a raw value could not be converted.
var ErrConversion = errors.New("conversion failed")

// Converter turns one raw keyword value into a typed value.
// Raw values are strings when parsed from the hub.
type Converter func(raw any) (any, error)

// AsRaw returns the raw value unchanged.
func AsRaw(raw any) (any, error) {
	return raw, nil
}

// AsString converts to string.
func AsString(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case nil:
		return nil, fmt.Errorf("%w: nil is not a string", ErrConversion)
	default:
		return fmt.Sprint(v), nil
	}
}

// AsASCII converts to string and rejects non-printable or non-ASCII characters.
func AsASCII(raw any) (any, error) {
	v, err := AsString(raw)
	if err != nil {
		return nil, err
	}
	s := v.(string)
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return nil, fmt.Errorf("%w: %q is not printable ASCII", ErrConversion, s)
		}
	}
	return s, nil
}

// AsFloat converts to float64. "NaN" converts to NaN.
func AsFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", ErrConversion, v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a float", ErrConversion, raw)
	}
}

// AsFloatOrNone converts to float64, mapping NaN to nil.
func AsFloatOrNone(raw any) (any, error) {
	v, err := AsFloat(raw)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v.(float64)) {
		return nil, nil
	}
	return v, nil
}

// AsInt converts to int.
func AsInt(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %v is not an integer", ErrConversion, v)
		}
		return int(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrConversion, v)
		}
		return int(i), nil
	default:
		return nil, fmt.Errorf("%w: %T is not an integer", ErrConversion, raw)
	}
}

// AsIntOrNone converts to int, mapping "NaN", "None" and "" to nil.
func AsIntOrNone(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "", "nan", "none":
			return nil, nil
		}
	}
	return AsInt(raw)
}

// AsHex converts a base-16 string (with or without 0x prefix) to int.
func AsHex(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		i, err := strconv.ParseInt(s, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not hexadecimal", ErrConversion, v)
		}
		return int(i), nil
	default:
		return nil, fmt.Errorf("%w: %T is not hexadecimal", ErrConversion, raw)
	}
}

// AsBool converts T/F, true/false, yes/no and 1/0 (case-insensitive) to bool.
func AsBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "t", "true", "y", "yes", "1":
			return true, nil
		case "f", "false", "n", "no", "0":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %q is not a boolean", ErrConversion, v)
	default:
		return nil, fmt.Errorf("%w: %T is not a boolean", ErrConversion, raw)
	}
}

var convertersByName = map[string]Converter{
	"raw":         AsRaw,
	"str":         AsString,
	"string":      AsString,
	"ascii":       AsASCII,
	"float":       AsFloat,
	"floatornone": AsFloatOrNone,
	"int":         AsInt,
	"intornone":   AsIntOrNone,
	"hex":         AsHex,
	"bool":        AsBool,
}

// ConverterByName looks up a converter by its catalog name
// (raw, str, ascii, float, floatOrNone, int, intOrNone, hex, bool).
func ConverterByName(name string) (Converter, error) {
	c, ok := convertersByName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown converter %q", name)
	}
	return c, nil
}

// Converters extends list to n entries by repeating its last converter.
// A list already n or longer is returned unchanged.
func Converters(list []Converter, n int) []Converter {
	if len(list) == 0 || len(list) >= n {
		return list
	}
	out := make([]Converter, n)
	copy(out, list)
	for i := len(list); i < n; i++ {
		out[i] = list[len(list)-1]
	}
	return out
}
