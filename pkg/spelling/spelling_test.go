package spelling_test

import (
	"testing"

	"github.com/opst/crabclient/pkg/spelling"
	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	for _, tc := range []struct {
		a, b string
		then int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"status", "stauts", 2},
		{"kill", "kill", 0},
		{"getoutput", "getoutputold", 3},
		{"réport", "report", 1},
	} {
		t.Run(tc.a+"/"+tc.b, func(t *testing.T) {
			assert.Equal(t, tc.then, spelling.Distance(tc.a, tc.b))
			assert.Equal(t, tc.then, spelling.Distance(tc.b, tc.a))
		})
	}
}

func TestSuggest(t *testing.T) {
	verbs := []string{
		"submit", "status", "kill", "proceed", "report",
		"getoutput", "getoutputold", "getlog", "resubmit",
	}

	t.Run("it suggests a close verb", func(t *testing.T) {
		assert.Equal(t, []string{"status"}, spelling.Suggest("stauts", verbs))
	})

	t.Run("it orders by distance", func(t *testing.T) {
		assert.Equal(t, []string{"resubmit", "submit"}, spelling.Suggest("resubmi", verbs))
		assert.Equal(t, []string{"getoutput", "getoutputold"}, spelling.Suggest("getoutpu", verbs))
	})

	t.Run("it suggests by prefix", func(t *testing.T) {
		assert.Equal(t, []string{"getlog", "getoutput", "getoutputold"}, spelling.Suggest("get", verbs))
	})

	t.Run("it ignores case", func(t *testing.T) {
		assert.Equal(t, []string{"kill"}, spelling.Suggest("KIL", verbs))
	})

	t.Run("it suggests nothing for a far word", func(t *testing.T) {
		assert.Empty(t, spelling.Suggest("xyzzy", verbs))
	})

	t.Run("closest", func(t *testing.T) {
		w, ok := spelling.Closest("repor", verbs)
		assert.True(t, ok)
		assert.Equal(t, "report", w)

		_, ok = spelling.Closest("xyzzy", verbs)
		assert.False(t, ok)
	})

	t.Run("hint", func(t *testing.T) {
		assert.Equal(t, `did you mean "status"?`, spelling.Hint("stauts", verbs))
		assert.Equal(t, `did you mean "submit"?`, spelling.Hint("sumbit", verbs))
		assert.Equal(t, `did you mean one of "getlog", "getoutput", "getoutputold"?`, spelling.Hint("get", verbs))
		assert.Equal(t, "", spelling.Hint("xyzzy", verbs))
	})
}
