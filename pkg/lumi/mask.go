package lumi

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

var ErrMaskFormat = errors.New("malformed lumi mask")

// Range is an inclusive range of lumi sections.
type Range struct {
	First int
	Last  int
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.First, r.Last})
}

func (r *Range) UnmarshalJSON(b []byte) error {
	var pair []int
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("%w: %w", ErrMaskFormat, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: lumi range should be [first, last], but %s", ErrMaskFormat, b)
	}
	if pair[1] < pair[0] || pair[0] < 0 {
		return fmt.Errorf("%w: invalid lumi range %s", ErrMaskFormat, b)
	}
	r.First, r.Last = pair[0], pair[1]
	return nil
}

// Mask maps run numbers to lumi ranges.
//
// In JSON, it is an object keyed by run number as string:
//
//	{"190456": [[1, 10], [15, 20]]}
type Mask map[int][]Range

func (m Mask) MarshalJSON() ([]byte, error) {
	raw := make(map[string][]Range, len(m))
	for run, ranges := range m {
		if ranges == nil {
			ranges = []Range{}
		}
		raw[strconv.Itoa(run)] = ranges
	}
	return json.Marshal(raw)
}

func (m *Mask) UnmarshalJSON(b []byte) error {
	raw := map[string][]Range{}
	if err := json.Unmarshal(b, &raw); err != nil {
		if errors.Is(err, ErrMaskFormat) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrMaskFormat, err)
	}

	mask := make(Mask, len(raw))
	for key, ranges := range raw {
		run, err := strconv.Atoi(key)
		if err != nil || run < 0 {
			return fmt.Errorf("%w: run number %q", ErrMaskFormat, key)
		}
		mask[run] = append(mask[run], ranges...)
	}
	*m = mask
	return nil
}

// Runs returns run numbers in ascending order.
func (m Mask) Runs() []int {
	runs := make([]int, 0, len(m))
	for run := range m {
		runs = append(runs, run)
	}
	slices.Sort(runs)
	return runs
}

// Len counts lumi sections in the mask.
func (m Mask) Len() int {
	n := 0
	for _, ranges := range m.Compact() {
		for _, r := range ranges {
			n += r.Last - r.First + 1
		}
	}
	return n
}

// Compact returns an equivalent mask with ranges sorted, and overlapping or
// adjacent ranges merged. Runs without lumis are dropped.
func (m Mask) Compact() Mask {
	ret := Mask{}
	for run, ranges := range m {
		if len(ranges) == 0 {
			continue
		}
		sorted := slices.Clone(ranges)
		slices.SortFunc(sorted, func(a, b Range) int { return a.First - b.First })

		merged := []Range{sorted[0]}
		for _, r := range sorted[1:] {
			last := &merged[len(merged)-1]
			if r.First <= last.Last+1 {
				last.Last = max(last.Last, r.Last)
				continue
			}
			merged = append(merged, r)
		}
		ret[run] = merged
	}
	return ret
}

// FromLumis builds a compact mask from lists of lumi sections per run.
func FromLumis(lumis map[int][]int) Mask {
	m := Mask{}
	for run, ls := range lumis {
		for _, l := range ls {
			m[run] = append(m[run], Range{First: l, Last: l})
		}
	}
	return m.Compact()
}

// Union returns a compact mask covering lumis in m or other.
func (m Mask) Union(other Mask) Mask {
	ret := Mask{}
	for run, ranges := range m {
		ret[run] = append(ret[run], ranges...)
	}
	for run, ranges := range other {
		ret[run] = append(ret[run], ranges...)
	}
	return ret.Compact()
}

// Intersect returns a compact mask covering lumis in both m and other.
func (m Mask) Intersect(other Mask) Mask {
	return m.Subtract(m.Subtract(other))
}

// Subtract returns a compact mask covering lumis in m but not in other.
func (m Mask) Subtract(other Mask) Mask {
	sub := other.Compact()
	ret := Mask{}
	for run, ranges := range m.Compact() {
		rest := ranges
		for _, cut := range sub[run] {
			next := []Range{}
			for _, r := range rest {
				if cut.Last < r.First || r.Last < cut.First {
					next = append(next, r)
					continue
				}
				if r.First < cut.First {
					next = append(next, Range{First: r.First, Last: cut.First - 1})
				}
				if cut.Last < r.Last {
					next = append(next, Range{First: cut.Last + 1, Last: r.Last})
				}
			}
			rest = next
		}
		if 0 < len(rest) {
			ret[run] = rest
		}
	}
	return ret
}

// FilterRuns keeps only the given runs. An empty list keeps everything.
func (m Mask) FilterRuns(runs []int) Mask {
	if len(runs) == 0 {
		return m.Compact()
	}
	keep := make(map[int]struct{}, len(runs))
	for _, run := range runs {
		keep[run] = struct{}{}
	}
	ret := Mask{}
	for run, ranges := range m.Compact() {
		if _, ok := keep[run]; ok {
			ret[run] = ranges
		}
	}
	return ret
}
