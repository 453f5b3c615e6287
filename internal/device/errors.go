package device

import (
	"errors"
	"fmt"
	"strings"
)

// Operation errors. Every failure surfaced by a session future matches exactly
// one of these with errors.Is, or unwraps to an *AdapterError.
var (
	ErrTimeout             = errors.New("timeout")
	ErrDisconnected        = errors.New("disconnected")
	ErrNotSupported        = errors.New("not supported")
	ErrNotSerializable     = errors.New("not serializable")
	ErrDiscoveryInProgress = errors.New("discovery in progress")
	ErrNoServices          = errors.New("no services discovered")
	ErrGiveUp              = errors.New("retry limit reached, giving up")
	ErrAlreadyConnected    = errors.New("already connected")
	ErrSessionClosed       = errors.New("session closed")
)

// NotFoundError represents an error when a GATT resource is not known to the session
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// AdapterError is a passthrough of a hardware-reported failure.
type AdapterError struct {
	Op  string // adapter call that failed, e.g. "connect", "read"
	Err error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("adapter %s failed", e.Op)
	}
	return fmt.Sprintf("adapter %s failed: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError wraps err unless it already belongs to the taxonomy.
// Returns nil for a nil err.
func NewAdapterError(op string, err error) error {
	if err == nil {
		return nil
	}
	var aerr *AdapterError
	if errors.As(err, &aerr) || isTaxonomy(err) {
		return err
	}
	return &AdapterError{Op: op, Err: err}
}

// OperationError decorates a characteristic operation failure with its context.
// It unwraps to the underlying taxonomy error.
type OperationError struct {
	Op          string // "read", "write", "notify"
	ServiceUUID string
	CharUUID    string
	Sequence    uint64
	Err         error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s/%s (seq %d): %v", e.Op, e.ServiceUUID, e.CharUUID, e.Sequence, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsAdapterFailure reports whether err carries a hardware-reported failure
func IsAdapterFailure(err error) bool {
	var aerr *AdapterError
	return errors.As(err, &aerr)
}

func isTaxonomy(err error) bool {
	for _, target := range []error{
		ErrTimeout, ErrDisconnected, ErrNotSupported, ErrNotSerializable,
		ErrDiscoveryInProgress, ErrNoServices, ErrGiveUp, ErrAlreadyConnected, ErrSessionClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NormalizeError maps well-known hardware error strings onto the taxonomy.
// Unknown errors are returned unchanged. The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"),
		containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "timed out"), containsIgnoreCase(msg, "timeout"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}
