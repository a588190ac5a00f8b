package utils

import (
	"errors"
	"fmt"
)

// Sentinel errors for broad classification
var (
	ErrConfigInconsistency = errors.New("configuration inconsistency")
	ErrMeshTopology        = errors.New("mesh topology error")
	ErrDegenerateElement   = errors.New("degenerate element")
	ErrCouplingMisuse      = errors.New("coupling misuse")
	ErrNotPopulated        = errors.New("container not populated")
	ErrStageOrder          = errors.New("preprocessing stage out of order")
	ErrComm                = errors.New("communication failure")
)

// ErrorKind is a coarse-grained categorization for errors
type ErrorKind string

const (
	KindConfig     ErrorKind = "config"
	KindMesh       ErrorKind = "mesh"
	KindDegenerate ErrorKind = "degenerate"
	KindCoupling   ErrorKind = "coupling"
	KindStage      ErrorKind = "stage"
	KindComm       ErrorKind = "comm"
)

// Error wraps an underlying error with operation context, a kind and the
// zone it was raised for. Zone is -1 when the error is not zone scoped.
type Error struct {
	Op   string
	Kind ErrorKind
	Zone int
	Err  error
}

// NewError builds an Error for a zone
func NewError(op string, kind ErrorKind, zone int, err error) *Error {
	return &Error{Op: op, Kind: kind, Zone: zone, Err: err}
}

// Errorf builds an Error whose cause wraps the sentinel for kind
func Errorf(op string, kind ErrorKind, zone int, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Op: op, Kind: kind, Zone: zone, Err: fmt.Errorf("%w: %s", sentinelFor(kind), msg)}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Zone >= 0 {
		base += fmt.Sprintf(" (zone=%d)", e.Zone)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsKind reports whether any Error in err's chain has the given kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindConfig:
		return ErrConfigInconsistency
	case KindMesh:
		return ErrMeshTopology
	case KindDegenerate:
		return ErrDegenerateElement
	case KindCoupling:
		return ErrCouplingMisuse
	case KindStage:
		return ErrStageOrder
	default:
		return ErrComm
	}
}
