package search

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// AOB (Array of Bytes) is a pattern to search for in memory.
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // 0xFF means exact match and 0x00 means wildcard
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) == 0 {
		return AOB{}, fmt.Errorf("empty pattern")
	}
	if len(mask) == 0 {
		mask = bytes.Repeat([]byte{0xFF}, len(pattern))
	}
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("mask length (%d) doesn't match pattern length (%d)", len(mask), len(pattern))
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// ParseAOB parses a pattern like "48 8b ?? 05" or "48,8b,?,05".
func ParseAOB(aob string) (AOB, error) {
	parts := strings.FieldsFunc(aob, func(r rune) bool {
		return r == ',' || r == ' '
	})

	var pattern, mask []byte
	for _, part := range parts {
		if part == "??" || part == "?" {
			pattern = append(pattern, 0)
			mask = append(mask, 0)
			continue
		}

		val, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return AOB{}, fmt.Errorf("invalid hex byte: %s", part)
		}
		pattern = append(pattern, byte(val))
		mask = append(mask, 0xFF)
	}

	return NewAOB(pattern, mask)
}

func (aob AOB) String() string {
	var sb strings.Builder
	for i := range aob.Pattern {
		if i > 0 {
			sb.WriteString(" ")
		}
		if aob.Mask[i] == 0 {
			sb.WriteString("??")
		} else {
			sb.WriteString(hex.EncodeToString(aob.Pattern[i : i+1]))
		}
	}
	return sb.String()
}

// Match returns the offsets in data where the pattern matches.
func (aob AOB) Match(data []byte) []int {
	var matches []int
	for i := 0; i+len(aob.Pattern) <= len(data); i++ {
		if aob.matchAt(data[i:]) {
			matches = append(matches, i)
		}
	}
	return matches
}

func (aob AOB) matchAt(data []byte) bool {
	for j := range aob.Pattern {
		if data[j]&aob.Mask[j] != aob.Pattern[j]&aob.Mask[j] {
			return false
		}
	}
	return true
}
