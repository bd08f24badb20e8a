// Package spelling suggests known words close to a misspelled one.
package spelling

import (
	"slices"
	"strings"
)

// Distance is the Levenshtein distance between a and b, counted in runes.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			cost := 1
			if ca == cb {
				cost = 0
			}
			curr[j+1] = min(prev[j]+cost, prev[j+1]+1, curr[j]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Threshold is the largest distance accepted for a word of the given length.
func Threshold(word string) int {
	n := len([]rune(word))
	switch {
	case n <= 2:
		return 1
	case n <= 5:
		return 2
	default:
		return 3
	}
}

// Suggest returns candidates close to word, nearest first.
// Candidates at the same distance keep their given order.
//
// Matching is case insensitive, and a candidate having word as its prefix is
// always suggested.
func Suggest(word string, candidates []string) []string {
	type scored struct {
		word string
		dist int
	}

	lower := strings.ToLower(word)
	limit := Threshold(word)

	found := []scored{}
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if lc == lower {
			continue
		}
		d := Distance(lower, lc)
		if limit < d && !(lower != "" && strings.HasPrefix(lc, lower)) {
			continue
		}
		found = append(found, scored{word: c, dist: d})
	}

	slices.SortStableFunc(found, func(a, b scored) int { return a.dist - b.dist })

	ret := make([]string, 0, len(found))
	for _, f := range found {
		ret = append(ret, f.word)
	}
	return ret
}

// Closest returns the nearest candidate, if any is close enough.
func Closest(word string, candidates []string) (string, bool) {
	s := Suggest(word, candidates)
	if len(s) == 0 {
		return "", false
	}
	return s[0], true
}

// Hint formats suggestions for an error message, like
// `did you mean "status"?`. It is empty when nothing is suggested.
func Hint(word string, candidates []string) string {
	s := Suggest(word, candidates)
	switch len(s) {
	case 0:
		return ""
	case 1:
		return `did you mean "` + s[0] + `"?`
	default:
		return `did you mean one of "` + strings.Join(s, `", "`) + `"?`
	}
}
