package utils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, int64(42), ParseValue(" 42 "))
	assert.Equal(t, 4.5, ParseValue("4.5"))
	assert.Equal(t, "E06000023", ParseValue("E06000023"))
	assert.Nil(t, ParseValue("   "))
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{7, 7, true},
		{int64(8), 8, true},
		{uint8(9), 9, true},
		{json.Number("3.25"), 3.25, true},
		{" 10 ", 10, true},
		{[]byte("11.5"), 11.5, true},
		{"x", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat(tt.in)
		assert.Equal(t, tt.ok, ok, "%#v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "%#v", tt.in)
		}
	}
}

func TestToInt(t *testing.T) {
	i, ok := ToInt(json.Number("2021"))
	assert.True(t, ok)
	assert.Equal(t, int64(2021), i)

	i, ok = ToInt(json.Number("2021.0"))
	assert.True(t, ok)
	assert.Equal(t, int64(2021), i)

	i, ok = ToInt(2022.0)
	assert.True(t, ok)
	assert.Equal(t, int64(2022), i)

	_, ok = ToInt(2022.5)
	assert.False(t, ok)
	_, ok = ToInt("2022.5")
	assert.False(t, ok)
	_, ok = ToInt(nil)
	assert.False(t, ok)

	for _, big := range []interface{}{1e20, -1e20, json.Number("1e19"), float64(1 << 63)} {
		_, ok = ToInt(big)
		assert.False(t, ok, "%#v overflows int64", big)
	}
	i, ok = ToInt(float64(-1 << 63))
	assert.True(t, ok)
	assert.Equal(t, int64(-1<<63), i)
}

func TestToDate(t *testing.T) {
	d, ok := ToDate("2021-03-04")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), d)

	d, ok = ToDate("2021-03-04T23:30:00-02:00")
	assert.True(t, ok)
	assert.Equal(t, 5, d.Day())

	_, ok = ToDate("yesterday")
	assert.False(t, ok)
	_, ok = ToDate(2021)
	assert.False(t, ok)
}

func TestToBool(t *testing.T) {
	for in, want := range map[interface{}]bool{true: true, "false": false, "1": true, 0: false, int64(1): true} {
		got, ok := ToBool(in)
		assert.True(t, ok, "%#v", in)
		assert.Equal(t, want, got, "%#v", in)
	}
	_, ok := ToBool(2)
	assert.False(t, ok)
	_, ok = ToBool("maybe")
	assert.False(t, ok)
}
