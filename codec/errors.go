package codec

import (
	"errors"
	"fmt"
)

// ErrFormat matches every *FormatError with errors.Is.
var ErrFormat = errors.New("dns format error")

// FormatError reports malformed message bytes at a given offset.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("dns format error at offset %d: %s", e.Offset, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErr(offset int, format string, args ...any) error {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
