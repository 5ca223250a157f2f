// Package cipher implements the byte shuffling applied to tunnel traffic.
// It hides DNS payloads from naive inspection only and is not encryption.
package cipher

import (
	"math/bits"
	"slices"
)

const mask byte = 0xb7

// Encode transforms buf in place and returns it: bytes reversed, then every
// byte rotated left by two bits and xored with the mask.
func Encode(buf []byte) []byte {
	slices.Reverse(buf)
	for i, c := range buf {
		buf[i] = bits.RotateLeft8(c, 2) ^ mask
	}
	return buf
}

// Decode reverses Encode in place.
func Decode(buf []byte) []byte {
	for i, c := range buf {
		buf[i] = bits.RotateLeft8(c^mask, -2)
	}
	slices.Reverse(buf)
	return buf
}
