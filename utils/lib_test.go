package utils

import (
	"testing"

	"github.com/oarkflow/json"
	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Batman Begins", "batman begins"},
		{"  The   Dark\tKnight ", "the dark knight"},
		{"", ""},
		{"   ", ""},
		{"AMÉLIE", "amélie"},
		{"Straße", "strasse"},
		{"ＡＶＡＴＡＲ", "avatar"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), "Fold(%q)", tt.in)
	}
}

func TestWordStarts(t *testing.T) {
	assert.Nil(t, WordStarts("avatar"))
	assert.Equal(t, []int{7}, WordStarts("batman begins"))
	assert.Equal(t, []int{7}, WordStarts("spider-man"))
	assert.Nil(t, WordStarts("schindler's"))
	assert.Equal(t, []int{4, 9}, WordStarts("the dark knight"))
	// offsets are byte offsets
	assert.Equal(t, []int{8}, WordStarts("amélie poulain"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Action", "Sci-Fi"}, SplitList("Action|Sci-Fi"))
	assert.Equal(t, []string{"Drama", "Crime"}, SplitList(" Drama , Crime ,"))
	assert.Empty(t, SplitList(""))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-4, 0, 10))
	assert.Equal(t, 10, Clamp(40, 0, 10))
	assert.Equal(t, 5, Clamp(5, 0, 10))
}

func TestToNumbers(t *testing.T) {
	f, ok := ToFloat(json.Number("7.9"))
	assert.True(t, ok)
	assert.InDelta(t, 7.9, f, 1e-9)

	_, ok = ToFloat("n/a")
	assert.False(t, ok)

	i, ok := ToInt("142.0")
	assert.True(t, ok)
	assert.Equal(t, 142, i)

	i, ok = ToInt(json.Number("2009"))
	assert.True(t, ok)
	assert.Equal(t, 2009, i)

	_, ok = ToInt(struct{}{})
	assert.False(t, ok)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "42", ToString(42))
	assert.Equal(t, "8.5", ToString(8.5))
	assert.Equal(t, "true", ToString(true))
}
