package keyvar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverters(t *testing.T) {
	tests := []struct {
		name    string
		conv    Converter
		raw     any
		want    any
		wantErr bool
	}{
		{"string", AsString, "Tracking", "Tracking", false},
		{"string from int", AsString, 5, "5", false},
		{"string nil", AsString, nil, nil, true},
		{"ascii", AsASCII, "TCC ok", "TCC ok", false},
		{"ascii control char", AsASCII, "bad\x01", nil, true},
		{"ascii non-ascii", AsASCII, "héllo", nil, true},
		{"float", AsFloat, " 12.5 ", 12.5, false},
		{"float exponent", AsFloat, "1e-3", 0.001, false},
		{"float bad", AsFloat, "abc", nil, true},
		{"float from int", AsFloat, 3, 3.0, false},
		{"floatOrNone", AsFloatOrNone, "2", 2.0, false},
		{"floatOrNone NaN", AsFloatOrNone, "NaN", nil, false},
		{"floatOrNone nan", AsFloatOrNone, "nan", nil, false},
		{"int", AsInt, "-42", -42, false},
		{"int float string", AsInt, "4.2", nil, true},
		{"int whole float", AsInt, 4.0, 4, false},
		{"intOrNone", AsIntOrNone, "7", 7, false},
		{"intOrNone NaN", AsIntOrNone, "NaN", nil, false},
		{"intOrNone None", AsIntOrNone, "None", nil, false},
		{"intOrNone bad", AsIntOrNone, "x", nil, true},
		{"hex", AsHex, "1F", 31, false},
		{"hex prefixed", AsHex, "0x10", 16, false},
		{"hex bad", AsHex, "zz", nil, true},
		{"bool T", AsBool, "T", true, false},
		{"bool F", AsBool, "F", false, false},
		{"bool true", AsBool, "True", true, false},
		{"bool 0", AsBool, "0", false, false},
		{"bool bad", AsBool, "maybe", nil, true},
		{"raw", AsRaw, "anything", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.conv(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConversion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAsFloatNaN(t *testing.T) {
	v, err := AsFloat("NaN")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v.(float64)))
}

func TestConverterByName(t *testing.T) {
	for _, name := range []string{"raw", "str", "string", "ascii", "float", "floatOrNone", "int", "intOrNone", "hex", "bool"} {
		c, err := ConverterByName(name)
		if err != nil {
			t.Errorf("ConverterByName(%q) error = %v", name, err)
		}
		if c == nil {
			t.Errorf("ConverterByName(%q) returned nil", name)
		}
	}

	_, err := ConverterByName("complex")
	assert.Error(t, err)
}

func TestConvertersRepeatsLast(t *testing.T) {
	list := Converters([]Converter{AsString, AsFloat}, 4)
	require.Len(t, list, 4)

	v, err := list[3]("1.5")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	short := []Converter{AsInt, AsInt, AsInt}
	assert.Len(t, Converters(short, 2), 3)
	assert.Empty(t, Converters(nil, 3))
}
