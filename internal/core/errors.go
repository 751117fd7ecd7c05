// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w") and match with errors.Is.
var (
	// Rule store errors
	ErrStoreIO         = errors.New("trafficguard: rule store unreadable or unwritable")
	ErrStoreFormat     = errors.New("trafficguard: rule store content is not a rule list")
	ErrIndexOutOfRange = errors.New("trafficguard: rule index out of range")
	ErrInvalidRule     = errors.New("trafficguard: invalid rule")

	// Packet extraction errors
	ErrNoNetworkLayer = errors.New("trafficguard: packet has no network layer")

	// Enforcement errors
	ErrEnforcementFailed = errors.New("trafficguard: enforcement failed")

	// Capture errors
	ErrInterfaceOpen = errors.New("trafficguard: cannot open capture interface")

	// Configuration errors
	ErrConfigInvalid = errors.New("trafficguard: invalid configuration")
)

// IndexError reports a CRUD operation that addressed a rule position outside
// the current sequence. It matches ErrIndexOutOfRange via errors.Is.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("trafficguard: rule index %d out of range [0,%d)", e.Index, e.Len)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}
