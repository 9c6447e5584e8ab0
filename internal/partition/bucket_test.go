package partition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeIndex(t *testing.T) {
	tests := []struct {
		name   string
		rating float64
		n      int
		want   int
	}{
		{"zero joins bucket 0", 0.0, 5, 0},
		{"boundary joins lower bucket", 1.0, 5, 0},
		{"inside bucket 1", 1.5, 5, 1},
		{"boundary 2.0", 2.0, 5, 1},
		{"just above boundary", 2.0001, 5, 2},
		{"max rating", 5.0, 5, 4},
		{"single partition", 3.5, 1, 0},
		{"single partition max", 5.0, 1, 0},
		{"thirds max", 5.0, 3, 2},
		{"thirds middle", 2.5, 3, 1},
		{"halves boundary", 2.5, 2, 0},
		{"halves above", 2.6, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, RangeIndex(tt.rating, tt.n))
		})
	}
}

func TestRangeIndexMatchesBounds(t *testing.T) {
	for n := 1; n <= 12; n++ {
		delta := RangeDelta(n)
		var ratings []float64
		for r := 0.0; r <= 5.0; r += 0.125 {
			ratings = append(ratings, r)
		}
		for i := 0; i <= n; i++ {
			ratings = append(ratings, float64(i)*delta)
		}

		for _, r := range ratings {
			if r > 5.0 {
				continue
			}
			idx := RangeIndex(r, n)
			require.GreaterOrEqual(t, idx, 0)
			require.Less(t, idx, n)

			lo, hi := RangeBounds(idx, n)
			if idx == 0 {
				require.GreaterOrEqual(t, r, lo, "n=%d rating=%v", n, r)
			} else {
				require.Greater(t, r, lo, "n=%d rating=%v", n, r)
			}
			require.LessOrEqual(t, r, hi, "n=%d rating=%v", n, r)
		}
	}
}

func TestRangeBoundsCoverFullScale(t *testing.T) {
	for n := 1; n <= 12; n++ {
		lo, _ := RangeBounds(0, n)
		require.Equal(t, 0.0, lo)

		_, hi := RangeBounds(n-1, n)
		require.Equal(t, 5.0, hi)

		for i := 1; i < n; i++ {
			_, prevHi := RangeBounds(i-1, n)
			lo, _ := RangeBounds(i, n)
			require.Equal(t, prevHi, lo, "bucket %d of %d", i, n)
		}
	}
}

func TestRoundRobinIndex(t *testing.T) {
	var got []int
	for pos := int64(10); pos < 16; pos++ {
		got = append(got, RoundRobinIndex(pos, 3))
	}
	require.Equal(t, []int{1, 2, 0, 1, 2, 0}, got)
}
