// Package reader bounds untrusted request bodies.
package reader

import (
	"errors"
	"io"
)

// ErrTooLong is returned by reads once more than the configured limit has
// been consumed.
var ErrTooLong = errors.New("the incoming request body is too long")

type limitReadCloser struct {
	io.ReadCloser
	remaining int64
}

// NewLimitReadCloser returns a ReadCloser that fails with ErrTooLong as
// soon as reads surpass limit bytes. Unlike io.LimitReader it reports the
// overrun instead of faking an early EOF, so callers can tell a bounded
// body from a truncated one.
func NewLimitReadCloser(rc io.ReadCloser, limit int64) io.ReadCloser {
	return &limitReadCloser{
		ReadCloser: rc,
		remaining:  limit,
	}
}

func (l *limitReadCloser) Read(p []byte) (int, error) {
	n, err := l.ReadCloser.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLong
	}
	return n, err
}
