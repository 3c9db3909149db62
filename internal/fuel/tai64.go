package fuel

import (
	"fmt"
	"strconv"
)

// tai64UnixOffset is the TAI64 label of the Unix epoch: 2^62 plus the
// 10-second TAI-UTC delta at 1970-01-01.
const tai64UnixOffset = uint64(1)<<62 + 10

// tai64ToUnix converts a fuel block header timestamp (decimal TAI64 string)
// to Unix seconds.
func tai64ToUnix(s string) (int64, error) {
	raw, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse tai64 timestamp %q: %w", s, err)
	}
	if raw < tai64UnixOffset {
		return 0, fmt.Errorf("tai64 timestamp %d predates the unix epoch", raw)
	}
	return int64(raw - tai64UnixOffset), nil
}

// unixToTai64 is the inverse of tai64ToUnix.
func unixToTai64(unix int64) string {
	return strconv.FormatUint(uint64(unix)+tai64UnixOffset, 10)
}
