package relay

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OutboundOperation identifies one messaging client operation type.
type OutboundOperation string

const (
	// OutboundOperationFetchMessages identifies FetchMessages operations.
	OutboundOperationFetchMessages OutboundOperation = "fetch_messages"
	// OutboundOperationSendText identifies SendText operations.
	OutboundOperationSendText OutboundOperation = "send_text"
	// OutboundOperationSendMedia identifies SendMedia operations.
	OutboundOperationSendMedia OutboundOperation = "send_media"
	// OutboundOperationDeleteMessages identifies DeleteMessages operations.
	OutboundOperationDeleteMessages OutboundOperation = "delete_messages"
	// OutboundOperationResolvePeer identifies peer resolution.
	OutboundOperationResolvePeer OutboundOperation = "resolve_peer"
	// OutboundOperationReadHistory identifies history reads.
	OutboundOperationReadHistory OutboundOperation = "read_history"
)

// OutboundErrorKind describes coarse-grained failure classification.
type OutboundErrorKind string

const (
	// OutboundErrorKindRateLimited indicates platform-side rate limiting.
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	// OutboundErrorKindPermissionDenied indicates missing write or admin rights.
	OutboundErrorKindPermissionDenied OutboundErrorKind = "permission_denied"
	// OutboundErrorKindDestinationInvalid indicates an unknown or inaccessible peer.
	OutboundErrorKindDestinationInvalid OutboundErrorKind = "destination_invalid"
	// OutboundErrorKindFormatRejected indicates rejected formatting entities or markup.
	OutboundErrorKindFormatRejected OutboundErrorKind = "format_rejected"
	// OutboundErrorKindTemporary indicates retryable transient failure.
	OutboundErrorKindTemporary OutboundErrorKind = "temporary"
	// OutboundErrorKindPermanent indicates non-retryable permanent failure.
	OutboundErrorKindPermanent OutboundErrorKind = "permanent"
	// OutboundErrorKindUnknown indicates unclassified failure.
	OutboundErrorKindUnknown OutboundErrorKind = "unknown"
)

// OutboundError carries structured metadata for one failed client operation.
type OutboundError struct {
	// Operation identifies which operation failed.
	Operation OutboundOperation
	// Kind classifies whether and how callers should retry.
	Kind OutboundErrorKind
	// Peer describes the destination or source involved when known.
	Peer string
	// RetryAfter carries the server-required wait for rate-limited failures.
	RetryAfter time.Duration
	// Code carries the platform RPC code when known.
	Code int
	// Type carries the platform error type token when known.
	Type string
	// Cause is the wrapped platform/transport error.
	Cause error
}

// Error returns one operator-readable failure summary.
func (e *OutboundError) Error() string {
	if e == nil {
		return "<nil>"
	}

	fields := make([]string, 0, 6)
	if operation := strings.TrimSpace(string(e.Operation)); operation != "" {
		fields = append(fields, "operation="+operation)
	}
	if kind := strings.TrimSpace(string(e.Kind)); kind != "" {
		fields = append(fields, "kind="+kind)
	}
	if peer := strings.TrimSpace(e.Peer); peer != "" {
		fields = append(fields, "peer="+peer)
	}
	if e.RetryAfter > 0 {
		fields = append(fields, "retry_after="+e.RetryAfter.String())
	}
	if e.Code != 0 {
		fields = append(fields, fmt.Sprintf("code=%d", e.Code))
	}
	if errorType := strings.TrimSpace(e.Type); errorType != "" {
		fields = append(fields, "type="+errorType)
	}

	if len(fields) == 0 {
		if e.Cause == nil {
			return "outbound error"
		}
		return fmt.Sprintf("outbound error: %v", e.Cause)
	}

	if e.Cause == nil {
		return "outbound error: " + strings.Join(fields, " ")
	}
	return "outbound error: " + strings.Join(fields, " ") + ": " + e.Cause.Error()
}

// Unwrap returns the wrapped root cause.
func (e *OutboundError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsOutboundError extracts one OutboundError from wrapped error chains.
func AsOutboundError(err error) (*OutboundError, bool) {
	if err == nil {
		return nil, false
	}

	var outboundErr *OutboundError
	if errors.As(err, &outboundErr) {
		return outboundErr, true
	}

	return nil, false
}

// AsOutboundRateLimit extracts the retry delay from rate-limit errors.
//
// It returns (0, false) if err is not classified as rate-limited and
// (0, true) when rate-limited without a known wait.
func AsOutboundRateLimit(err error) (time.Duration, bool) {
	outboundErr, ok := AsOutboundError(err)
	if !ok || outboundErr == nil || outboundErr.Kind != OutboundErrorKindRateLimited {
		return 0, false
	}

	return outboundErr.RetryAfter, true
}

// OutboundErrorKindOf returns the kind of err, or unknown when unclassified.
func OutboundErrorKindOf(err error) OutboundErrorKind {
	outboundErr, ok := AsOutboundError(err)
	if !ok {
		return OutboundErrorKindUnknown
	}

	return outboundErr.Kind
}

// IsTerminalDelivery reports whether err means the destination cannot accept
// messages, so retrying the item is pointless.
func IsTerminalDelivery(err error) bool {
	switch OutboundErrorKindOf(err) {
	case OutboundErrorKindPermissionDenied, OutboundErrorKindDestinationInvalid:
		return true
	default:
		return false
	}
}
