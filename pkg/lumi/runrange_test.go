package lumi_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/opst/crabclient/pkg/lumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunRange(t *testing.T) {
	theory := func(when string, then []int) func(*testing.T) {
		return func(t *testing.T) {
			actual, err := lumi.ParseRunRange(when)
			require.NoError(t, err)
			assert.Equal(t, then, actual)
		}
	}

	t.Run("numbers and ranges", theory("1,2,5-8", []int{1, 2, 5, 6, 7, 8}))
	t.Run("empty string", theory("", []int{}))
	t.Run("blank string", theory("  ", []int{}))
	t.Run("single element range", theory("3-3", []int{3}))
	t.Run("spaces around terms", theory(" 4 , 10 - 12", []int{4, 10, 11, 12}))
	t.Run("order is kept", theory("9,1-2", []int{9, 1, 2}))

	for _, malformed := range []string{"a", "1,,2", "1-", "-3", "5-3", "1-2-3", "1,"} {
		t.Run("malformed: "+malformed, func(t *testing.T) {
			_, err := lumi.ParseRunRange(malformed)
			assert.ErrorIs(t, err, lumi.ErrRunRange)
		})
	}
}

func TestParseRunRange_Limit(t *testing.T) {
	t.Run("a range up to the limit is expanded", func(t *testing.T) {
		ns, err := lumi.ParseRunRange(fmt.Sprintf("1-%d", lumi.MaxRunRangeMembers))
		require.NoError(t, err)
		assert.Len(t, ns, lumi.MaxRunRangeMembers)
	})

	for _, huge := range []string{
		"1-3000000000",
		fmt.Sprintf("0-%d", lumi.MaxRunRangeMembers),
		fmt.Sprintf("7,1-%d", lumi.MaxRunRangeMembers),
		fmt.Sprintf("1-%d", math.MaxInt),
	} {
		t.Run("too many members: "+huge, func(t *testing.T) {
			_, err := lumi.ParseRunRange(huge)
			assert.ErrorIs(t, err, lumi.ErrRunRange)
			assert.ErrorContains(t, err, "more than")
		})
	}
}

func TestFormatRunRange(t *testing.T) {
	assert.Equal(t, "1-2,5-8,10", lumi.FormatRunRange([]int{1, 2, 5, 6, 7, 8, 10}))
	assert.Equal(t, "", lumi.FormatRunRange(nil))

	ns, err := lumi.ParseRunRange(lumi.FormatRunRange([]int{3, 4, 5, 9}))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5, 9}, ns)
}
