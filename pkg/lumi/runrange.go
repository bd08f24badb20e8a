package lumi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrRunRange = errors.New("malformed run range")

// MaxRunRangeMembers is how many numbers a run range may expand to.
const MaxRunRangeMembers = 1_000_000

// ParseRunRange expands a comma separated list of numbers and inclusive
// ranges, like "1,2,5-8", into its members in the order written.
//
// An empty (or blank) string is an empty list. A list expanding to more than
// MaxRunRangeMembers numbers is an error.
func ParseRunRange(s string) ([]int, error) {
	ret := []int{}
	if strings.TrimSpace(s) == "" {
		return ret, nil
	}

	for _, term := range strings.Split(s, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			return nil, fmt.Errorf("%w: empty element in %q", ErrRunRange, s)
		}

		first, last, isRange := strings.Cut(term, "-")
		lo, err := parseNumber(first)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrRunRange, term, err)
		}
		hi := lo
		if isRange {
			if hi, err = parseNumber(last); err != nil {
				return nil, fmt.Errorf("%w: %q: %w", ErrRunRange, term, err)
			}
		}
		if hi < lo {
			return nil, fmt.Errorf("%w: %q: descending range", ErrRunRange, term)
		}

		if MaxRunRangeMembers-len(ret) <= hi-lo {
			return nil, fmt.Errorf(
				"%w: %q: more than %d members", ErrRunRange, term, MaxRunRangeMembers,
			)
		}
		for n := lo; n <= hi; n++ {
			ret = append(ret, n)
		}
	}
	return ret, nil
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative number %d", n)
	}
	return n, nil
}

// FormatRunRange is the inverse of ParseRunRange. Consecutive numbers are
// folded into ranges.
func FormatRunRange(ns []int) string {
	terms := []string{}
	for i := 0; i < len(ns); {
		j := i
		for j+1 < len(ns) && ns[j+1] == ns[j]+1 {
			j++
		}
		if i == j {
			terms = append(terms, strconv.Itoa(ns[i]))
		} else {
			terms = append(terms, fmt.Sprintf("%d-%d", ns[i], ns[j]))
		}
		i = j + 1
	}
	return strings.Join(terms, ",")
}
