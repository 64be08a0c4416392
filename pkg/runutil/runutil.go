// Copyright (c) The Thanos Authors.
// Licensed under the Apache License 2.0.

// Package runutil provides helpers to close Closers that must not leak their
// errors silently. Book-session releases and HTTP response bodies both flush
// on Close, so the error matters even on a best-effort path:
//
//	defer runutil.CloseWithLogOnErr(logger, sess, "release book session")
//
// When the caller wants the close error merged into its own return error,
// use CloseWithErrCapture:
//
//	defer runutil.CloseWithErrCapture(&err, sess, "release book session")
//
// The Exhaust* variants drain an io.ReadCloser before closing it, which is
// required for HTTP keep-alive connections to be reused.
package runutil

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/efficientgo/core/merrors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	pkgerrors "github.com/pkg/errors"
)

// CloseWithLogOnErr is making sure we log every error, even those from best effort tiny closers.
func CloseWithLogOnErr(logger log.Logger, closer io.Closer, format string, a ...interface{}) {
	err := closer.Close()
	if err == nil {
		return
	}

	// Not a problem if it has been closed already.
	if errors.Is(err, os.ErrClosed) {
		return
	}

	if logger == nil {
		logger = log.NewLogfmtLogger(os.Stderr)
	}

	level.Warn(logger).Log("msg", "detected close error", "err", pkgerrors.Wrapf(err, fmt.Sprintf(format, a...)))
}

// ExhaustCloseWithLogOnErr closes the io.ReadCloser with a log message on error but exhausts the reader before.
func ExhaustCloseWithLogOnErr(logger log.Logger, r io.ReadCloser, format string, a ...interface{}) {
	_, err := io.Copy(ioutil.Discard, r)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to exhaust reader, performance may be impeded", "err", err)
	}

	CloseWithLogOnErr(logger, r, format, a...)
}

// CloseWithErrCapture runs function and on error return error by argument including the given error (usually
// from caller function).
func CloseWithErrCapture(err *error, closer io.Closer, format string, a ...interface{}) {
	merr := merrors.NilOrMultiError{}

	merr.Add(*err)
	merr.Add(pkgerrors.Wrapf(closer.Close(), format, a...))

	*err = merr.Err()
}

// ExhaustCloseWithErrCapture closes the io.ReadCloser with error capture but exhausts the reader before.
func ExhaustCloseWithErrCapture(err *error, r io.ReadCloser, format string, a ...interface{}) {
	_, copyErr := io.Copy(ioutil.Discard, r)

	CloseWithErrCapture(err, r, format, a...)

	// Prepend the io.Copy error.
	merr := merrors.NilOrMultiError{}
	merr.Add(copyErr)
	merr.Add(*err)

	*err = merr.Err()
}
