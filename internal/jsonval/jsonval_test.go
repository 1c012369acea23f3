package jsonval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTripPrimitives(t *testing.T) {
	cases := []string{
		`null`, `true`, `false`, `0`, `-12`, `3.5`, `"hi"`, `[]`, `{}`,
		`{"a":1,"b":[1,2,3]}`,
	}
	for _, c := range cases {
		v, err := Parse(c)
		require.NoError(t, err, c)
		assert.Equal(t, c, Write(v), c)
	}
}

func TestParsePreservesObjectKeyOrder(t *testing.T) {
	v, err := Parse(`{"z":1,"a":2,"m":3}`)
	require.NoError(t, err)
	members, ok := v.Members()
	require.True(t, ok)
	require.Len(t, members, 3)
	assert.Equal(t, []string{"z", "a", "m"}, []string{members[0].Key, members[1].Key, members[2].Key})
}

func TestDuplicateKeyRejected(t *testing.T) {
	_, err := Parse(`{"a":1,"a":2}`)
	require.Error(t, err)
}

func TestStringEscaping(t *testing.T) {
	v := String("line\nbreak\t\"quote\"\\back")
	got := Write(v)
	assert.Equal(t, `"line\nbreak\t\"quote\"\\back"`, got)

	parsed, err := Parse(got)
	require.NoError(t, err)
	s, ok := parsed.String()
	require.True(t, ok)
	assert.Equal(t, "line\nbreak\t\"quote\"\\back", s)
}

func TestControlByteEscaped(t *testing.T) {
	v := String("bell\x07end")
	got := Write(v)
	assert.Equal(t, "\"bell\\u0007end\"", got)

	parsed, err := Parse(got)
	require.NoError(t, err)
	s, _ := parsed.String()
	assert.Equal(t, "bell\x07end", s)
}

func TestFormatNumberTrimsTrailingZeros(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "4", FormatNumber(4.0))
	assert.Equal(t, "3.5", FormatNumber(3.5))
	assert.Equal(t, "120", FormatNumber(120))
	assert.Equal(t, "0.000001", FormatNumber(0.000001))
	assert.Equal(t, "-2.25", FormatNumber(-2.25))
}

func TestUnicodeEscapeDecoded(t *testing.T) {
	v, err := Parse("\"\\u0041\\u00e9\"")
	require.NoError(t, err)
	s, _ := v.String()
	assert.Equal(t, "Aé", s)
}

func TestTrailingContentRejected(t *testing.T) {
	_, err := Parse(`1 2`)
	require.Error(t, err)
}

func TestGetHelper(t *testing.T) {
	v := Object(Member{Key: "name", Value: String("demo")})
	got, ok := v.Get("name")
	require.True(t, ok)
	s, _ := got.String()
	assert.Equal(t, "demo", s)

	_, ok = v.Get("missing")
	assert.False(t, ok)
}
