package partition

import (
	"math"

	"ratingpart/internal/models"
)

// RangeDelta is the width of each of n range buckets.
func RangeDelta(n int) float64 {
	return models.MaxRating / float64(n)
}

// RangeBounds returns the bounds of bucket i out of n. Bucket 0 covers
// [lo, hi]; every other bucket covers (lo, hi]. The last bucket always ends
// at MaxRating, and each upper bound is computed exactly as the next
// bucket's lower bound, so the buckets tile [0, 5] with no gap or overlap.
func RangeBounds(i, n int) (lo, hi float64) {
	delta := RangeDelta(n)
	lo = float64(i) * delta
	hi = float64(i+1) * delta
	if i == n-1 {
		hi = models.MaxRating
	}
	return lo, hi
}

// RangeIndex returns the bucket a rating belongs to out of n.
// A rating on a boundary joins the lower bucket.
func RangeIndex(rating float64, n int) int {
	delta := RangeDelta(n)
	i := int(math.Floor(rating / delta))
	if math.Mod(rating, delta) == 0 && i != 0 {
		i--
	}

	if i > n-1 {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}

	// Reconcile with the exact bounds RangePartition filters on.
	for i > 0 {
		if lo, _ := RangeBounds(i, n); rating > lo {
			break
		}
		i--
	}
	for i < n-1 {
		if _, hi := RangeBounds(i, n); rating <= hi {
			break
		}
		i++
	}
	return i
}

// RoundRobinIndex returns the partition for the row at zero-based position pos.
func RoundRobinIndex(pos int64, n int) int {
	return int(pos % int64(n))
}
