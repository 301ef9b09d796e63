package cli

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// ParseUint parses a decimal or 0x prefixed hexadecimal number of at most
// bits bits.
func ParseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, errors.NotValidf("number %q", s)
	}
	return v, nil
}

// ParseIndex parses an object index.
func ParseIndex(s string) (uint16, error) {
	v, err := ParseUint(s, 16)
	if err != nil {
		return 0, errors.NotValidf("index %q", s)
	}
	return uint16(v), nil
}

// ParseSubIndex parses a subindex.
func ParseSubIndex(s string) (uint8, error) {
	v, err := ParseUint(s, 8)
	if err != nil {
		return 0, errors.NotValidf("subindex %q", s)
	}
	return uint8(v), nil
}

// ParseIndexRange parses "FIRST-LAST". first must not exceed last.
func ParseIndexRange(s string) (first, last uint16, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, errors.NotValidf("index range %q", s)
	}
	if first, err = ParseIndex(parts[0]); err != nil {
		return 0, 0, err
	}
	if last, err = ParseIndex(parts[1]); err != nil {
		return 0, 0, err
	}
	if first > last {
		return 0, 0, errors.NotValidf("index range %q", s)
	}
	return first, last, nil
}

// ParseIndexSubIndex parses "INDEX:SUBINDEX".
func ParseIndexSubIndex(s string) (index uint16, subIndex uint8, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, errors.NotValidf("object address %q, want INDEX:SUBINDEX", s)
	}
	if index, err = ParseIndex(parts[0]); err != nil {
		return 0, 0, err
	}
	if subIndex, err = ParseSubIndex(parts[1]); err != nil {
		return 0, 0, err
	}
	return index, subIndex, nil
}

// ExpectArgs checks the argument count of a command.
func ExpectArgs(args []string, min, max int, usage string) error {
	if len(args) < min || len(args) > max {
		return errors.NotValidf("arguments %q, usage: %s", strings.Join(args, " "), usage)
	}
	return nil
}
