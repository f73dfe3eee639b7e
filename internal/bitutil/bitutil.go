// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bitutil holds the handful of bit-level helpers the history
// shard needs: extracting the top N bits of a byte string (the bucket
// selector, and the prefix-match test) and comparing two bit strings
// MSB-first for the shard's sort order.
package bitutil

// TopBits returns the top n bits of b, packed into the low bits of the
// returned value, MSB-first. n must be <= 32.
func TopBits(b []byte, n int) uint32 {
	if n <= 0 {
		return 0
	}
	var v uint32
	bitsTaken := 0
	for _, by := range b {
		if bitsTaken >= n {
			break
		}
		take := n - bitsTaken
		if take > 8 {
			take = 8
		}
		v = (v << uint(take)) | uint32(by>>(8-take))
		bitsTaken += take
	}
	return v
}

// HasPrefix reports whether the top prefixBits bits of b equal
// prefix, where prefix holds prefixBits significant bits packed
// MSB-first into its low bits (the same packing TopBits returns).
func HasPrefix(b []byte, prefix uint32, prefixBits int) bool {
	if prefixBits == 0 {
		return true
	}
	return TopBits(b, prefixBits) == prefix
}

// Compare compares two equal-length bit strings MSB-first: the lower
// value is the one with a 0 at the most significant differing bit.
// Equal-length byte strings compare lexicographically byte-by-byte,
// which is exactly MSB-first bit comparison, so Compare is just
// bytes.Compare restricted to the documented precondition.
func Compare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b under Compare.
func Less(a, b []byte) bool {
	return Compare(a, b) < 0
}
