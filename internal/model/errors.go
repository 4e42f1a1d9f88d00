package model

import (
	"errors"
	"fmt"
)

// DecodeError records a failure to decode a raw account payload.
type DecodeError struct {
	Protocol Protocol
	Address  string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s account %s: %v", e.Protocol, e.Address, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RangeError reports a tick outside the valid tick domain.
type RangeError struct {
	Tick int32
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("tick %d out of range", e.Tick)
}

// MathError reports invalid inputs to liquidity math.
type MathError struct {
	Reason string
}

func (e *MathError) Error() string {
	return "liquidity math: " + e.Reason
}

// ValuationError reports missing prerequisite state for valuation.
type ValuationError struct {
	Reason string
}

func (e *ValuationError) Error() string {
	return "valuation: " + e.Reason
}

// ProtocolMismatchError reports a position paired with the wrong pool.
type ProtocolMismatchError struct {
	PositionPool string
	FetchedPool  string
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("position references pool %s but got %s", e.PositionPool, e.FetchedPool)
}

// ErrPriceUnavailable marks a token with no usable quote.
var ErrPriceUnavailable = errors.New("price unavailable")

// RPCError wraps a chain RPC failure with its retry classification.
type RPCError struct {
	Transient bool
	Err       error
}

func (e *RPCError) Error() string {
	if e.Transient {
		return fmt.Sprintf("rpc transient: %v", e.Err)
	}
	return fmt.Sprintf("rpc fatal: %v", e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// IsTransientRPC reports whether err is a retryable RPC failure.
func IsTransientRPC(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Transient
	}
	return false
}
