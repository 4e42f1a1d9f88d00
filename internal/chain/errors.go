package chain

import (
	"context"
	"errors"
	"net"
	"strings"

	"positionscope/internal/model"
)

// classify wraps an RPC failure with its retry classification. Rate limits,
// timeouts and transport drops are transient; reverts and malformed requests
// are not.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return &model.RPCError{Transient: isTransient(err), Err: err}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return transientMessage(err.Error())
}

func transientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{
		"429",
		"too many requests",
		"rate limit",
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad gateway",
		"service unavailable",
		"502",
		"503",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
