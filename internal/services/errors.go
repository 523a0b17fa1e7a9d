package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/bobby-s-dev/weather-lookup/pkg/client"
)

// Kind classifies why a lookup produced no result.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindConfig
	KindAuth
	KindNotFound
	KindRateLimited
	KindUpstream
	KindUpstreamFormat
	KindTimeout
	KindConnectivity
	KindTransport
)

var kindNames = map[Kind]string{
	KindInvalidInput:   "InvalidInput",
	KindConfig:         "ConfigError",
	KindAuth:           "AuthError",
	KindNotFound:       "NotFound",
	KindRateLimited:    "RateLimited",
	KindUpstream:       "UpstreamError",
	KindUpstreamFormat: "UpstreamFormat",
	KindTimeout:        "TimeoutError",
	KindConnectivity:   "ConnectivityError",
	KindTransport:      "TransportError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// LookupError carries the user-facing message shown in the error envelope.
type LookupError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *LookupError) Error() string {
	return e.Message
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 if err is not a *LookupError.
func KindOf(err error) Kind {
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return lookupErr.Kind
	}
	return 0
}

func newLookupError(kind Kind, err error, format string, args ...interface{}) *LookupError {
	return &LookupError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// classifyTransportError maps a client failure onto the taxonomy.
func classifyTransportError(err error) *LookupError {
	if errors.Is(err, client.ErrMalformedPayload) {
		return newLookupError(KindUpstreamFormat, err, "Unexpected error: %v", err)
	}

	if errors.Is(err, client.ErrCircuitOpen) {
		return newLookupError(KindUpstream, err, "API Error: weather service temporarily unavailable")
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newLookupError(KindTimeout, err, "Request timeout - please try again")
	}

	if isConnectivityError(err) {
		return newLookupError(KindConnectivity, err, "Connection error - check your internet connection")
	}

	return newLookupError(KindTransport, err, "Request error: %v", err)
}

func isConnectivityError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
