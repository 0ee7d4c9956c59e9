package relay

import "errors"

var (
	// ErrInvalidLink indicates that a permalink does not match the expected shape.
	ErrInvalidLink = errors.New("relay: invalid message link")
	// ErrInvalidChannel indicates that a channel reference could not be parsed.
	ErrInvalidChannel = errors.New("relay: invalid channel reference")
	// ErrNotFound indicates that a target message is absent from its fetch window.
	ErrNotFound = errors.New("relay: message not found")
	// ErrFiltered indicates that a message group was skipped by the ad filter.
	ErrFiltered = errors.New("relay: message group filtered")
	// ErrInvalidOutboundRequest indicates that an outbound request is malformed.
	ErrInvalidOutboundRequest = errors.New("relay: invalid outbound request")
	// ErrOutboundUnsupported indicates that an outbound operation cannot be expressed by the driver.
	ErrOutboundUnsupported = errors.New("relay: outbound operation unsupported")
	// ErrStopped indicates that a batch run observed its stop flag.
	ErrStopped = errors.New("relay: batch stopped")
)
