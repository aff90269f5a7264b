package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain text", input: "app crashes on launch", want: "app crashes on launch"},
		{name: "surrounding whitespace", input: "  slow sync  ", want: "slow sync"},
		{name: "internal runs collapse", input: "login\t\tfails\n\nagain", want: "login fails again"},
		{name: "whitespace only", input: " \t\n ", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.input))
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{name: "equal", a: "1.2.0", b: "1.2.0", want: 0},
		{name: "numeric ordering beats lexicographic", a: "1.10.0", b: "1.9.3", want: 1},
		{name: "shorter version is older", a: "1.2", b: "1.2.1", want: -1},
		{name: "major wins", a: "2.0.0", b: "1.99.99", want: 1},
		{name: "non-numeric segments compare lexicographically", a: "1.2.beta", b: "1.2.alpha", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareVersions(tt.b, tt.a))
		})
	}
}

func TestSortReleases(t *testing.T) {
	versions := []string{"1.10.0", "1.2.0", "2.0.0", "1.9.3"}
	SortReleases(versions)
	assert.Equal(t, []string{"1.2.0", "1.9.3", "1.10.0", "2.0.0"}, versions)
}

func TestReleases(t *testing.T) {
	reviews := []Review{
		{ID: "a", Release: "1.10.0"},
		{ID: "b", Release: "1.2.0"},
		{ID: "c", Release: "1.10.0"},
		{ID: "d", Release: "1.9.3"},
	}
	assert.Equal(t, []string{"1.2.0", "1.9.3", "1.10.0"}, Releases(reviews))
}
