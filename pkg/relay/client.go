package relay

import (
	"context"
	"fmt"
	"strconv"
)

// ParseMode selects how outgoing text formatting is expressed.
type ParseMode string

const (
	// ParseModeEntities sends plain text with offset-based entities.
	ParseModeEntities ParseMode = ""
	// ParseModeHTML sends inline HTML markup.
	ParseModeHTML ParseMode = "html"
)

// OutgoingText is text to deliver, either as a message or as a media caption.
type OutgoingText struct {
	// Text is the body or caption.
	Text string
	// Entities are formatting spans used with ParseModeEntities.
	Entities []TextEntity
	// Mode selects entity or markup formatting.
	Mode ParseMode
}

// Validate checks the text against its formatting mode.
func (t OutgoingText) Validate() error {
	switch t.Mode {
	case ParseModeEntities:
		return ValidateTextEntities(t.Text, t.Entities)
	case ParseModeHTML:
		if len(t.Entities) > 0 {
			return fmt.Errorf("%w: html text carries entities", ErrInvalidOutboundRequest)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported parse mode %q", ErrInvalidOutboundRequest, t.Mode)
	}
}

// Destination addresses where a message is delivered.
type Destination struct {
	// UserID addresses a private chat with one user.
	UserID int64
	// Channel addresses a channel or group when UserID is zero.
	Channel ChannelRef
}

// UserDestination addresses a private chat.
func UserDestination(userID int64) Destination {
	return Destination{UserID: userID}
}

// ChannelDestination addresses a channel or group.
func ChannelDestination(channel ChannelRef) Destination {
	return Destination{Channel: channel}
}

// IsUser reports whether the destination is a private chat.
func (d Destination) IsUser() bool {
	return d.UserID != 0
}

// Validate checks that the destination names a peer.
func (d Destination) Validate() error {
	if d.IsUser() {
		return nil
	}
	if err := d.Channel.Validate(); err != nil {
		return fmt.Errorf("%w: destination: %w", ErrInvalidOutboundRequest, err)
	}

	return nil
}

// String describes the destination for logs.
func (d Destination) String() string {
	if d.IsUser() {
		return "user:" + strconv.FormatInt(d.UserID, 10)
	}

	return d.Channel.String()
}

// MessagingClient fetches, sends and deletes platform messages.
//
// Failures are reported as *OutboundError with a classified kind; rate
// limits carry the server-required wait.
type MessagingClient interface {
	// FetchMessages returns the messages present among ids, keyed by id.
	FetchMessages(ctx context.Context, channel ChannelRef, ids []int) (map[int]RawMessage, error)
	// SendText sends one text message and returns the created message ids.
	SendText(ctx context.Context, dest Destination, text OutgoingText) ([]int, error)
	// SendMedia sends media with caption as one message or album.
	SendMedia(ctx context.Context, dest Destination, media []Media, caption OutgoingText) ([]int, error)
	// DeleteMessages removes messages from the destination chat.
	DeleteMessages(ctx context.Context, dest Destination, ids []int) error
}

// HistoryReader walks the message history of a channel.
type HistoryReader interface {
	// CountMessages returns the number of messages in the channel history.
	CountMessages(ctx context.Context, channel ChannelRef) (int, error)
	// LatestMessageID returns the id of the newest message in the channel.
	LatestMessageID(ctx context.Context, channel ChannelRef) (int, error)
	// IterateHistory calls fn for every message oldest first until fn returns an error.
	IterateHistory(ctx context.Context, channel ChannelRef, fn func(RawMessage) error) error
}
