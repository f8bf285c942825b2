package updatelog

import "errors"

var (
	// ErrClosed indicates the log has been closed and cannot accept
	// further operations.
	ErrClosed = errors.New("updatelog: already closed")

	// ErrCorruptRecord indicates a record that could not be decoded,
	// including a partial record at the tail of the file.
	ErrCorruptRecord = errors.New("updatelog: corrupt record")
)
