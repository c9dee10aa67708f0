package client

import (
	"errors"
	"strings"

	"github.com/ibs-source/livesync/internal/transport"
)

var (
	// ErrStartup wraps the cause when Start cannot open the transport or
	// register the subscriptions.
	ErrStartup = errors.New("startup failed")
	// ErrClientStopped rejects commands that were outstanding or issued
	// after Stop.
	ErrClientStopped = errors.New("client stopped")
	// ErrEmptyCommand is returned when the command text is blank.
	ErrEmptyCommand = errors.New("command text is empty")

	errNoResult = errors.New("operation completed without a result")
)

// CommandError reports a failed command. Messages holds the peer's error
// messages; Err holds a local cause such as a dropped connection.
type CommandError struct {
	OperationID string
	Messages    []string
	Err         error
}

func (e *CommandError) Error() string {
	switch {
	case len(e.Messages) > 0:
		return "command failed: " + strings.Join(e.Messages, "; ")
	case e.Err != nil:
		return "command failed: " + e.Err.Error()
	default:
		return "command failed"
	}
}

func (e *CommandError) Unwrap() error { return e.Err }

func errorMessages(errs []transport.GraphQLError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Message)
	}
	if len(out) == 0 {
		out = append(out, "unknown error")
	}
	return out
}
