package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValueList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Courage, Growth, Wisdom, Purpose, Curiosity", []string{"Courage", "Growth", "Wisdom", "Purpose", "Curiosity"}},
		{"Family. Health. Peace", []string{"Family", "Health", "Peace"}},
		{"a;b ; c", []string{"a", "b", "c"}},
		{"Love\nHope\n\nPeace", []string{"Love", "Hope", "Peace"}},
		{"  Fun Hope   Grit ", []string{"Fun", "Hope", "Grit"}},
		{"Health; Physical Wellbeing, Care", []string{"Health; Physical Wellbeing", "Care"}},
		{", ;x", []string{";x"}},
		{",,", []string{",,"}},
		{"Courage", []string{"Courage"}},
		{"   ", nil},
		{"", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseValueList(tc.in), "input %q", tc.in)
	}
}

func TestParseValueListKeepsFirstFiveInOrder(t *testing.T) {
	inputs := [][]string{
		{"A", "B", "C", "D", "E"},
		{"Courage", "Growth", "Wisdom", "Purpose", "Curiosity", "Family", "Hope"},
		{"one value", "two", "three", "four", "five", "six"},
	}
	for _, items := range inputs {
		got := ParseValueList(strings.Join(items, ", "))
		require.GreaterOrEqual(t, len(got), 5)
		assert.Equal(t, items[:5], got[:5])
	}
}

func TestValidateAge(t *testing.T) {
	age, err := ValidateAge("25")
	require.NoError(t, err)
	assert.Equal(t, 25, age)

	age, err = ValidateAge("1,20!")
	require.NoError(t, err)
	assert.Equal(t, 120, age)

	age, err = ValidateAge("I am 18")
	require.NoError(t, err)
	assert.Equal(t, 18, age)

	for _, bad := range []string{"17", "121", "abc", "", "99999999999999999999999"} {
		_, err := ValidateAge(bad)
		require.Error(t, err, bad)
		assert.True(t, IsInvalid(err), bad)
	}
	_, err = ValidateAge("abc")
	assert.EqualError(t, err, "Please enter a numeric age.")
	_, err = ValidateAge("17")
	assert.EqualError(t, err, "Please enter a valid age between 18 and 120.")
}

func TestValidateCountry(t *testing.T) {
	got, err := ValidateCountry("canada")
	require.NoError(t, err)
	assert.Equal(t, "Canada", got)

	got, err = ValidateCountry("  UNITED kingdom ")
	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", got)

	_, err = ValidateCountry("   ")
	assert.EqualError(t, err, "Please enter a valid country name.")
	_, err = ValidateCountry("1234 !!")
	assert.EqualError(t, err, "Please enter a valid country name with alphabetic characters.")
}

func TestValidateOccupation(t *testing.T) {
	got, err := ValidateOccupation("nurse")
	require.NoError(t, err)
	assert.Equal(t, "Nurse", got)

	got, err = ValidateOccupation("software ENGINEER")
	require.NoError(t, err)
	assert.Equal(t, "Software engineer", got)

	_, err = ValidateOccupation("")
	assert.True(t, IsInvalid(err))
}
