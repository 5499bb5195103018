package utils

import "strings"

// DefaultGeohashPrecision tags location samples with ~1.2 km cells, enough to
// group vehicles by neighbourhood on the dispatch board.
const DefaultGeohashPrecision = 6

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash converts a coordinate to a geohash of the given precision.
//
// Go Learning Note — Bit Interleaving:
// Each character carries 5 bits. Bits alternate between longitude (even
// positions) and latitude (odd positions); every bit halves the remaining
// range. Nearby points therefore share a prefix, which is what makes
// prefix filters such as "all rides in cell dr5ru" possible.
func EncodeGeohash(lat, lon float64, precision int) string {
	if precision <= 0 {
		precision = DefaultGeohashPrecision
	}
	latRange := [2]float64{-90, 90}
	lonRange := [2]float64{-180, 180}

	var sb strings.Builder
	sb.Grow(precision)

	even := true
	bit, ch := 0, 0
	for sb.Len() < precision {
		if even {
			ch = ch<<1 | bisect(&lonRange, lon)
		} else {
			ch = ch<<1 | bisect(&latRange, lat)
		}
		even = !even

		bit++
		if bit == 5 {
			sb.WriteByte(geohashAlphabet[ch])
			bit, ch = 0, 0
		}
	}
	return sb.String()
}

// ValidGeohash reports whether s is a non-empty geohash prefix.
func ValidGeohash(s string) bool {
	if s == "" || len(s) > 12 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(geohashAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// bisect narrows r around v and returns 1 when v fell in the upper half.
func bisect(r *[2]float64, v float64) int {
	mid := (r[0] + r[1]) / 2
	if v >= mid {
		r[0] = mid
		return 1
	}
	r[1] = mid
	return 0
}
