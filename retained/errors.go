package retained

import "errors"

var (
	// ErrNotFound is returned by Load when no retained message exists for
	// the requested topic.
	ErrNotFound = errors.New("retained: no message for topic")

	// ErrStoreClosed is returned by any Store method called after Close.
	ErrStoreClosed = errors.New("retained: store is closed")
)
