package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// FaultKind classifies a completion-service failure. The set is closed:
// every error the orchestrator surfaces maps to exactly one kind.
type FaultKind int

const (
	// FaultUnknown covers failures that fit no other kind. Retried.
	FaultUnknown FaultKind = iota
	// FaultAborted means the caller cancelled the request. Never retried.
	FaultAborted
	// FaultAuth means the service rejected the credentials. Never retried.
	FaultAuth
	// FaultSafety means the service refused the prompt or stopped the
	// completion on a content filter. Never retried.
	FaultSafety
	// FaultRateLimited means the service asked us to slow down.
	FaultRateLimited
	// FaultServer means the service failed or was overloaded (5xx).
	FaultServer
	// FaultNetwork means the request never completed at the transport level.
	FaultNetwork
)

func (k FaultKind) String() string {
	switch k {
	case FaultAborted:
		return "aborted"
	case FaultAuth:
		return "auth_error"
	case FaultSafety:
		return "safety_blocked"
	case FaultRateLimited:
		return "rate_limited"
	case FaultServer:
		return "server_error"
	case FaultNetwork:
		return "network_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether the orchestrator may retry a fault of this kind.
func (k FaultKind) Retryable() bool {
	switch k {
	case FaultAborted, FaultAuth, FaultSafety:
		return false
	default:
		return true
	}
}

// Fault is a classified completion-service error.
type Fault struct {
	Kind       FaultKind
	Status     int           // HTTP status code, 0 when not applicable
	Message    string        // service-reported message, possibly truncated
	RetryAfter time.Duration // server-requested wait from Retry-After, 0 if absent
	Attempts   int           // attempts made before this fault was surfaced
}

func (f *Fault) Error() string {
	var b strings.Builder
	b.WriteString("llm: ")
	b.WriteString(f.Kind.String())
	if f.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", f.Status)
	}
	if f.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", f.Attempts)
	}
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	return b.String()
}

// KindOf classifies an arbitrary error into the fault taxonomy.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FaultAborted
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return FaultNetwork
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return FaultNetwork
	}
	return FaultUnknown
}

// asFault returns err as a *Fault, wrapping unclassified errors.
func asFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: KindOf(err), Message: err.Error()}
}

// abortedFault wraps a context error as an Aborted fault.
func abortedFault(err error) *Fault {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Fault{Kind: FaultAborted, Message: msg}
}
