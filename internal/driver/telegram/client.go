// Package telegram adapts relay messaging and history operations to the
// Telegram MTProto API through gotd.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"relaybot/pkg/relay"

	"github.com/gotd/td/tg"
)

const (
	defaultRPCTimeout = 15 * time.Second
	// maxAlbumSize is the platform limit of items in one album request.
	maxAlbumSize = 10
	// maxDeleteBatch is the platform limit of ids in one delete request.
	maxDeleteBatch = 100
)

// ClientOption mutates client configuration.
type ClientOption func(*clientConfig)

// WithRPCTimeout configures a timeout bound for each RPC call.
func WithRPCTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// WithClientLogger configures structured logging for client operations.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithClientName labels log lines of this client, e.g. bot or user.
func WithClientName(name string) ClientOption {
	return func(cfg *clientConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

type clientConfig struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
	name       string
}

// Client adapts relay messaging and history operations to Telegram RPC calls.
type Client struct {
	cfg   clientConfig
	peers *PeerCache
	rpc   telegramRPC
}

var (
	_ relay.MessagingClient = (*Client)(nil)
	_ relay.HistoryReader   = (*Client)(nil)
)

// NewClient creates a client issuing calls through the raw gotd API.
func NewClient(api *tg.Client, peers *PeerCache, options ...ClientOption) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("new telegram client: nil api")
	}

	return newClientWithRPC(newGotdRPC(api), peers, options...)
}

func newClientWithRPC(rpc telegramRPC, peers *PeerCache, options ...ClientOption) (*Client, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram client: nil rpc adapter")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram client: nil peer cache")
	}

	cfg := clientConfig{
		rpcTimeout: defaultRPCTimeout,
		name:       "bot",
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Client{
		cfg:   cfg,
		peers: peers,
		rpc:   rpc,
	}, nil
}

// FetchMessages returns the messages present among ids in channel.
func (c *Client) FetchMessages(ctx context.Context, channel relay.ChannelRef, ids []int) (map[int]relay.RawMessage, error) {
	out := make(map[int]relay.RawMessage, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	input, err := c.resolveInputChannel(ctx, relay.OutboundOperationFetchMessages, channel)
	if err != nil {
		return nil, fmt.Errorf("fetch messages resolve %s: %w", channel, err)
	}

	rpcCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.rpc.GetChannelMessages(rpcCtx, input, ids)
	if err != nil {
		return nil, fmt.Errorf(
			"fetch messages from %s: %w",
			channel,
			mapTelegramError(relay.OutboundOperationFetchMessages, channel.String(), err),
		)
	}

	messages, _ := c.rememberMessages(result)
	for _, message := range messages {
		raw, ok := mapMessage(message)
		if !ok {
			continue
		}
		out[raw.ID] = raw
	}

	return out, nil
}

// SendText sends one text message.
func (c *Client) SendText(ctx context.Context, dest relay.Destination, text relay.OutgoingText) ([]int, error) {
	if err := text.Validate(); err != nil {
		return nil, fmt.Errorf("send text validate: %w", err)
	}
	if text.Text == "" {
		return nil, fmt.Errorf("send text: %w: empty text", relay.ErrInvalidOutboundRequest)
	}

	peer, err := c.resolveDestination(ctx, relay.OutboundOperationSendText, dest)
	if err != nil {
		return nil, fmt.Errorf("send text resolve %s: %w", dest, err)
	}
	body, entities, err := outgoingBody(text)
	if err != nil {
		return nil, fmt.Errorf("send text body: %w", err)
	}
	randomID, err := c.rpc.RandomID()
	if err != nil {
		return nil, fmt.Errorf("send text: %w", err)
	}

	rpcCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	updates, err := c.rpc.SendMessage(rpcCtx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  body,
		Entities: entities,
		RandomID: randomID,
	})
	if err != nil {
		return nil, fmt.Errorf("send text to %s: %w", dest, mapTelegramError(relay.OutboundOperationSendText, dest.String(), err))
	}

	ids := sentMessageIDs(updates)
	c.logOutbound(ctx, "send_text",
		"destination", dest.String(),
		"parse_mode", string(text.Mode),
		"message_ids", ids,
	)

	return ids, nil
}

// SendMedia sends media as one message, or as albums of up to ten items with
// the caption on the first item.
func (c *Client) SendMedia(
	ctx context.Context,
	dest relay.Destination,
	media []relay.Media,
	caption relay.OutgoingText,
) ([]int, error) {
	if len(media) == 0 {
		return nil, fmt.Errorf("send media: %w: no media", relay.ErrInvalidOutboundRequest)
	}
	if err := caption.Validate(); err != nil {
		return nil, fmt.Errorf("send media validate caption: %w", err)
	}

	inputs := make([]tg.InputMediaClass, 0, len(media))
	for index, item := range media {
		input, ok := inputMediaOf(item)
		if !ok {
			return nil, fmt.Errorf("send media item[%d]: %w: media %s has no telegram payload",
				index, relay.ErrOutboundUnsupported, item.ID)
		}
		inputs = append(inputs, input)
	}

	peer, err := c.resolveDestination(ctx, relay.OutboundOperationSendMedia, dest)
	if err != nil {
		return nil, fmt.Errorf("send media resolve %s: %w", dest, err)
	}
	body, entities, err := outgoingBody(caption)
	if err != nil {
		return nil, fmt.Errorf("send media caption: %w", err)
	}

	var ids []int
	if len(inputs) == 1 {
		ids, err = c.sendSingleMedia(ctx, peer, inputs[0], body, entities)
	} else {
		ids, err = c.sendAlbums(ctx, peer, inputs, body, entities)
	}
	if err != nil {
		return ids, fmt.Errorf("send media to %s: %w", dest, mapTelegramError(relay.OutboundOperationSendMedia, dest.String(), err))
	}

	c.logOutbound(ctx, "send_media",
		"destination", dest.String(),
		"media_count", len(inputs),
		"parse_mode", string(caption.Mode),
		"message_ids", ids,
	)

	return ids, nil
}

func (c *Client) sendSingleMedia(
	ctx context.Context,
	peer tg.InputPeerClass,
	media tg.InputMediaClass,
	caption string,
	entities []tg.MessageEntityClass,
) ([]int, error) {
	randomID, err := c.rpc.RandomID()
	if err != nil {
		return nil, err
	}

	rpcCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	updates, err := c.rpc.SendMedia(rpcCtx, &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    media,
		Message:  caption,
		Entities: entities,
		RandomID: randomID,
	})
	if err != nil {
		return nil, err
	}

	return sentMessageIDs(updates), nil
}

func (c *Client) sendAlbums(
	ctx context.Context,
	peer tg.InputPeerClass,
	media []tg.InputMediaClass,
	caption string,
	entities []tg.MessageEntityClass,
) ([]int, error) {
	var ids []int
	for start := 0; start < len(media); start += maxAlbumSize {
		end := start + maxAlbumSize
		if end > len(media) {
			end = len(media)
		}

		chunk := make([]tg.InputSingleMedia, 0, end-start)
		for index, item := range media[start:end] {
			randomID, err := c.rpc.RandomID()
			if err != nil {
				return ids, err
			}
			single := tg.InputSingleMedia{Media: item, RandomID: randomID}
			if start == 0 && index == 0 {
				single.Message = caption
				single.Entities = entities
			}
			chunk = append(chunk, single)
		}

		sent, err := c.sendAlbum(ctx, peer, chunk)
		ids = append(ids, sent...)
		if err != nil {
			return ids, err
		}
	}

	return ids, nil
}

func (c *Client) sendAlbum(ctx context.Context, peer tg.InputPeerClass, media []tg.InputSingleMedia) ([]int, error) {
	rpcCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	updates, err := c.rpc.SendMultiMedia(rpcCtx, &tg.MessagesSendMultiMediaRequest{
		Peer:       peer,
		MultiMedia: media,
	})
	if err != nil {
		return nil, err
	}

	return sentMessageIDs(updates), nil
}

// DeleteMessages revokes messages in the destination chat.
func (c *Client) DeleteMessages(ctx context.Context, dest relay.Destination, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	peer, err := c.resolveDestination(ctx, relay.OutboundOperationDeleteMessages, dest)
	if err != nil {
		return fmt.Errorf("delete messages resolve %s: %w", dest, err)
	}

	for start := 0; start < len(ids); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(ids) {
			end = len(ids)
		}

		if err := c.deleteBatch(ctx, peer, ids[start:end]); err != nil {
			return fmt.Errorf("delete messages in %s: %w",
				dest, mapTelegramError(relay.OutboundOperationDeleteMessages, dest.String(), err))
		}
	}

	c.logOutbound(ctx, "delete_messages", "destination", dest.String(), "count", len(ids))

	return nil
}

func (c *Client) deleteBatch(ctx context.Context, peer tg.InputPeerClass, ids []int) error {
	rpcCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.rpc.DeleteMessages(rpcCtx, peer, ids)
}

func (c *Client) resolveDestination(
	ctx context.Context,
	operation relay.OutboundOperation,
	dest relay.Destination,
) (tg.InputPeerClass, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	if dest.IsUser() {
		return c.resolveUser(ctx, operation, dest.UserID)
	}

	return c.resolveChannel(ctx, operation, dest.Channel)
}

func (c *Client) resolveUser(ctx context.Context, operation relay.OutboundOperation, userID int64) (tg.InputPeerClass, error) {
	if peer, ok := c.peers.User(userID); ok {
		return peer, nil
	}

	label := "user:" + strconv.FormatInt(userID, 10)
	rpcCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	users, err := c.rpc.GetUsers(rpcCtx, []tg.InputUserClass{&tg.InputUser{UserID: userID}})
	if err != nil {
		return nil, mapTelegramError(relay.OutboundOperationResolvePeer, label, err)
	}
	c.peers.RememberUsers(users)

	if peer, ok := c.peers.User(userID); ok {
		return peer, nil
	}

	return nil, &relay.OutboundError{
		Operation: operation,
		Kind:      relay.OutboundErrorKindDestinationInvalid,
		Peer:      label,
		Cause:     fmt.Errorf("user %d is not accessible", userID),
	}
}

func (c *Client) resolveChannel(
	ctx context.Context,
	operation relay.OutboundOperation,
	channel relay.ChannelRef,
) (tg.InputPeerClass, error) {
	if err := channel.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", relay.ErrInvalidOutboundRequest, err)
	}

	if channel.Handle != "" {
		if peer, ok := c.peers.ChannelByHandle(channel.Handle); ok {
			return peer, nil
		}

		rpcCtx, cancel := c.withTimeout(ctx)
		defer cancel()

		peer, err := c.rpc.ResolveUsername(rpcCtx, channel.Handle)
		if err != nil {
			return nil, mapTelegramError(relay.OutboundOperationResolvePeer, channel.String(), err)
		}
		c.peers.RememberHandle(channel.Handle, peer)

		return peer, nil
	}

	rawID := channel.RawID()
	if peer, ok := c.peers.ChannelByID(rawID); ok {
		return peer, nil
	}

	rpcCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	chats, err := c.rpc.GetChannels(rpcCtx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: rawID}})
	if err != nil {
		return nil, mapTelegramError(relay.OutboundOperationResolvePeer, channel.String(), err)
	}
	c.peers.RememberChats(chats)

	if peer, ok := c.peers.ChannelByID(rawID); ok {
		return peer, nil
	}

	return nil, &relay.OutboundError{
		Operation: operation,
		Kind:      relay.OutboundErrorKindDestinationInvalid,
		Peer:      channel.String(),
		Cause:     fmt.Errorf("channel %d is not accessible", rawID),
	}
}

func (c *Client) resolveInputChannel(
	ctx context.Context,
	operation relay.OutboundOperation,
	channel relay.ChannelRef,
) (*tg.InputChannel, error) {
	peer, err := c.resolveChannel(ctx, operation, channel)
	if err != nil {
		return nil, err
	}

	input, ok := inputChannelOf(peer)
	if !ok {
		return nil, &relay.OutboundError{
			Operation: operation,
			Kind:      relay.OutboundErrorKindDestinationInvalid,
			Peer:      channel.String(),
			Cause:     fmt.Errorf("%s is not a channel", channel),
		}
	}

	return input, nil
}

// rememberMessages caches the peers attached to a messages result and
// returns its messages with the total count reported by the server.
func (c *Client) rememberMessages(result tg.MessagesMessagesClass) ([]tg.MessageClass, int) {
	switch typed := result.(type) {
	case *tg.MessagesMessages:
		c.peers.RememberUsers(typed.Users)
		c.peers.RememberChats(typed.Chats)
		return typed.Messages, len(typed.Messages)
	case *tg.MessagesMessagesSlice:
		c.peers.RememberUsers(typed.Users)
		c.peers.RememberChats(typed.Chats)
		return typed.Messages, typed.Count
	case *tg.MessagesChannelMessages:
		c.peers.RememberUsers(typed.Users)
		c.peers.RememberChats(typed.Chats)
		return typed.Messages, typed.Count
	default:
		return nil, 0
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.rpcTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.cfg.rpcTimeout)
}

func (c *Client) logOutbound(ctx context.Context, operation string, attrs ...any) {
	if c.cfg.logger == nil {
		return
	}

	values := make([]any, 0, 4+len(attrs))
	values = append(values, "operation", operation, "client", c.cfg.name)
	values = append(values, attrs...)
	c.cfg.logger.DebugContext(ctx, "telegram operation", values...)
}
