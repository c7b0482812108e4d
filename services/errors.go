package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamConnect marks every failure to establish or keep the
	// streaming completion call.
	ErrUpstreamConnect = errors.New("upstream connect error")

	// ErrStreamFinished is returned by a FragmentStream once its terminal
	// signal has already been delivered.
	ErrStreamFinished = errors.New("fragment stream already finished")

	// ErrClientGone is passed to Exchange.Finish when writing to the client failed.
	ErrClientGone = errors.New("client went away")
)

// UpstreamError wraps a provider failure. It matches ErrUpstreamConnect
// as well as the underlying cause.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamConnect, e.Err}
}
