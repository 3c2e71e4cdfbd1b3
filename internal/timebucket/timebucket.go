// Package timebucket computes the four granularities ({h,d,w,m}) that every
// event total is additionally recorded under, per the KeySchema's timed
// counter rows.
package timebucket

import "fmt"

// Interval is one of the four supported granularities.
type Interval string

const (
	Hour  Interval = "h"
	Day   Interval = "d"
	Week  Interval = "w"
	Month Interval = "m"
)

// divisors maps each interval tag to its seconds-per-bucket width.
var divisors = map[Interval]int64{
	Hour:  3600,
	Day:   86400,
	Week:  604800,
	Month: 2629746,
}

// All lists every interval the write fan-out records totals under.
var All = []Interval{Hour, Day, Week, Month}

// ParseQueryInterval maps the query-string spelling ("hour", "day", "week",
// "month") to an Interval tag.
func ParseQueryInterval(s string) (Interval, error) {
	switch s {
	case "hour":
		return Hour, nil
	case "day":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	default:
		return "", fmt.Errorf("unknown interval %q", s)
	}
}

// Bucket integer-divides an epoch-seconds timestamp by the interval's width,
// yielding the bucket index KeySchema packs as an 8-byte big-endian value.
func Bucket(interval Interval, epochSeconds int64) int64 {
	return epochSeconds / divisors[interval]
}

// BucketStart converts a bucket index back to the epoch-seconds timestamp
// at which that bucket began, for the [epoch_seconds, count] response
// pairs.
func BucketStart(interval Interval, bucket int64) int64 {
	return bucket * divisors[interval]
}
