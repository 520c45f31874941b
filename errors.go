package thumbcache

import (
	"fmt"
)

// ErrDecode indicates that decoding the source for a key failed.
//
// The original underlying error can be accessed via errors.Unwrap.
// The failure does not poison the key: no entry or pending state remains,
// so a later Get is free to attempt the decode again.
type ErrDecode struct {
	Key   Key
	cause error
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("decode failed for %q: %v", e.Key, e.cause)
}

func (e *ErrDecode) Unwrap() error { return e.cause }

// ErrInvalidated indicates that a load was invalidated while still queued,
// before its decode ever started.
type ErrInvalidated struct {
	Key Key
}

func (e *ErrInvalidated) Error() string {
	return fmt.Sprintf("load for %q invalidated while queued", e.Key)
}
