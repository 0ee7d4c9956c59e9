package telegram

import (
	"errors"
	"strings"

	"relaybot/pkg/relay"

	"github.com/gotd/td/tgerr"
)

// mapTelegramError classifies one gotd failure into a relay.OutboundError.
func mapTelegramError(operation relay.OutboundOperation, peer string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, relay.ErrInvalidOutboundRequest) || errors.Is(err, relay.ErrOutboundUnsupported) {
		return err
	}
	if _, ok := relay.AsOutboundError(err); ok {
		return err
	}

	outboundErr := &relay.OutboundError{
		Operation: operation,
		Kind:      relay.OutboundErrorKindUnknown,
		Peer:      peer,
		Cause:     err,
	}

	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		outboundErr.Kind = relay.OutboundErrorKindRateLimited
		outboundErr.RetryAfter = retryAfter
		if rpcErr, hasRPC := tgerr.As(err); hasRPC {
			outboundErr.Code = rpcErr.Code
			outboundErr.Type = rpcErr.Type
		}

		return outboundErr
	}

	rpcErr, ok := tgerr.As(err)
	if !ok {
		return outboundErr
	}

	outboundErr.Code = rpcErr.Code
	outboundErr.Type = rpcErr.Type
	outboundErr.Kind = classifyTelegramRPCError(rpcErr)

	return outboundErr
}

var (
	permissionDeniedTypes = map[string]struct{}{
		"CHAT_WRITE_FORBIDDEN":   {},
		"CHAT_ADMIN_REQUIRED":    {},
		"CHAT_RESTRICTED":        {},
		"USER_IS_BLOCKED":        {},
		"USER_BANNED_IN_CHANNEL": {},
		"BOT_GROUPS_BLOCKED":     {},
		"INPUT_USER_DEACTIVATED": {},
	}
	destinationInvalidTypes = map[string]struct{}{
		"PEER_ID_INVALID":       {},
		"CHANNEL_INVALID":       {},
		"CHANNEL_PRIVATE":       {},
		"CHAT_ID_INVALID":       {},
		"USERNAME_INVALID":      {},
		"USERNAME_NOT_OCCUPIED": {},
		"USER_ID_INVALID":       {},
		"MSG_ID_INVALID":        {},
	}
	formatRejectedTypes = map[string]struct{}{
		"ENTITY_BOUNDS_INVALID":       {},
		"ENTITY_MENTION_USER_INVALID": {},
		"ENTITIES_TOO_LONG":           {},
		"ENTITY_TEXTURL_INVALID":      {},
		"MESSAGE_TOO_LONG":            {},
		"MEDIA_CAPTION_TOO_LONG":      {},
		"DOCUMENT_INVALID":            {},
	}
)

func classifyTelegramRPCError(rpcErr *tgerr.Error) relay.OutboundErrorKind {
	if rpcErr == nil {
		return relay.OutboundErrorKindUnknown
	}

	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	if rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(errorType, "FLOOD") {
		return relay.OutboundErrorKindRateLimited
	}
	if _, ok := permissionDeniedTypes[errorType]; ok || strings.HasSuffix(errorType, "_FORBIDDEN") {
		return relay.OutboundErrorKindPermissionDenied
	}
	if _, ok := destinationInvalidTypes[errorType]; ok {
		return relay.OutboundErrorKindDestinationInvalid
	}
	if _, ok := formatRejectedTypes[errorType]; ok || strings.HasPrefix(errorType, "ENTITY_") {
		return relay.OutboundErrorKindFormatRejected
	}

	switch rpcErr.Code {
	case 303:
		return relay.OutboundErrorKindTemporary
	case 403:
		return relay.OutboundErrorKindPermissionDenied
	case 400, 401, 404, 405, 406:
		return relay.OutboundErrorKindPermanent
	}
	if rpcErr.Code >= 500 {
		return relay.OutboundErrorKindTemporary
	}

	return relay.OutboundErrorKindUnknown
}
