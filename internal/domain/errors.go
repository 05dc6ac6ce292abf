package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the controller's failure taxonomy.
type ErrorKind string

const (
	KindAuthorityDenied      ErrorKind = "authority-denied"
	KindPermissionDenied     ErrorKind = "permission-denied"
	KindDirectiveUnsupported ErrorKind = "directive-unsupported"
	KindResourceNotFound     ErrorKind = "resource-not-found"
	KindNoCapableHandler     ErrorKind = "no-capable-handler"
	KindTransientHostFailure ErrorKind = "transient-host-failure"
)

// HostError wraps a failed host-platform call with its kind.
type HostError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

// NewHostError builds a HostError.
func NewHostError(op string, kind ErrorKind, err error) *HostError {
	return &HostError{Op: op, Kind: kind, Err: err}
}

func (e *HostError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Anything unrecognised is a transient host failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var he *HostError
	if errors.As(err, &he) && he.Kind != "" {
		return he.Kind
	}
	return KindTransientHostFailure
}
