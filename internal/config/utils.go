package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errInvalidSize = errors.New("invalid size")

// parseSize converts a human-readable size string (e.g., "10MB") to bytes
func parseSize(size string) (uint64, error) {
	var multiplier uint64 = 1
	s := strings.ToUpper(strings.TrimSpace(size))

	switch {
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	value, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q", errInvalidSize, size)
	}
	if value > math.MaxUint64/multiplier {
		return 0, fmt.Errorf("%w %q: overflows uint64", errInvalidSize, size)
	}

	return value * multiplier, nil
}
