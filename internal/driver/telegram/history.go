package telegram

import (
	"context"
	"fmt"
	"sort"

	"relaybot/pkg/relay"

	"github.com/gotd/td/tg"
)

const historyPageSize = 100

// CountMessages returns the number of messages in the channel history.
func (c *Client) CountMessages(ctx context.Context, channel relay.ChannelRef) (int, error) {
	_, count, err := c.historyPage(ctx, channel, &tg.MessagesGetHistoryRequest{Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return count, nil
}

// LatestMessageID returns the id of the newest message in the channel.
func (c *Client) LatestMessageID(ctx context.Context, channel relay.ChannelRef) (int, error) {
	messages, _, err := c.historyPage(ctx, channel, &tg.MessagesGetHistoryRequest{Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("latest message id: %w", err)
	}

	latest := 0
	for _, message := range messages {
		if id := message.GetID(); id > latest {
			latest = id
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("latest message id of %s: %w", channel, relay.ErrNotFound)
	}

	return latest, nil
}

// IterateHistory calls fn for every message oldest first. Pages are requested
// upward from id 1, so messages posted during the walk are visited too.
func (c *Client) IterateHistory(ctx context.Context, channel relay.ChannelRef, fn func(relay.RawMessage) error) error {
	if fn == nil {
		return fmt.Errorf("iterate history: nil callback")
	}

	next := 1
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("iterate history of %s: %w", channel, err)
		}

		messages, _, err := c.historyPage(ctx, channel, &tg.MessagesGetHistoryRequest{
			OffsetID:  next,
			AddOffset: -historyPageSize,
			Limit:     historyPageSize,
		})
		if err != nil {
			return fmt.Errorf("iterate history: %w", err)
		}

		page := make([]relay.RawMessage, 0, len(messages))
		for _, message := range messages {
			raw, ok := mapMessage(message)
			if !ok || raw.ID < next {
				continue
			}
			page = append(page, raw)
		}
		if len(page) == 0 {
			return nil
		}
		sort.Slice(page, func(i, j int) bool { return page[i].ID < page[j].ID })

		for _, raw := range page {
			if err := fn(raw); err != nil {
				return err
			}
		}
		next = page[len(page)-1].ID + 1
	}
}

func (c *Client) historyPage(
	ctx context.Context,
	channel relay.ChannelRef,
	request *tg.MessagesGetHistoryRequest,
) ([]tg.MessageClass, int, error) {
	peer, err := c.resolveChannel(ctx, relay.OutboundOperationReadHistory, channel)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %s: %w", channel, err)
	}
	request.Peer = peer

	rpcCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.rpc.GetHistory(rpcCtx, request)
	if err != nil {
		return nil, 0, fmt.Errorf("read history of %s: %w",
			channel, mapTelegramError(relay.OutboundOperationReadHistory, channel.String(), err))
	}

	messages, count := c.rememberMessages(result)

	return messages, count, nil
}
