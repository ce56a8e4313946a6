package mgmt

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Transport-level failures. All of them are recovered by reconnecting.
var (
	ErrUnavailable  = errors.New("daemon unavailable")
	ErrHandshake    = errors.New("rpc handshake failed")
	ErrTimeout      = errors.New("request timed out")
	ErrStreamClosed = errors.New("event stream closed")
)

// ErrMalformed marks a payload that could not be decoded. It is dropped
// at the scope of the single event or call that carried it.
var ErrMalformed = errors.New("malformed daemon payload")

// RPCError is a request the daemon received and rejected.
type RPCError struct {
	Code    codes.Code
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("daemon rejected request: %s: %s", e.Code, e.Message)
}

// IsTransportError reports whether err means the connection to the
// daemon is gone and has to be re-established.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrHandshake) ||
		errors.Is(err, ErrStreamClosed)
}

// classify maps a gRPC call error onto the package's error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrTimeout, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return &RPCError{Code: st.Code(), Message: st.Message()}
	}
}
