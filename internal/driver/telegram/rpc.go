package telegram

import (
	"context"
	"fmt"
	"io"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
)

// telegramRPC is the narrow set of MTProto calls the client issues.
type telegramRPC interface {
	ResolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error)
	GetChannels(ctx context.Context, channels []tg.InputChannelClass) ([]tg.ChatClass, error)
	GetUsers(ctx context.Context, users []tg.InputUserClass) ([]tg.UserClass, error)
	GetChannelMessages(ctx context.Context, channel tg.InputChannelClass, ids []int) (tg.MessagesMessagesClass, error)
	GetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	SendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	SendMedia(ctx context.Context, request *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error)
	SendMultiMedia(ctx context.Context, request *tg.MessagesSendMultiMediaRequest) (tg.UpdatesClass, error)
	DeleteMessages(ctx context.Context, peer tg.InputPeerClass, ids []int) error
	RandomID() (int64, error)
}

type gotdRPC struct {
	raw    *tg.Client
	rand   io.Reader
	sender *message.Sender
}

func newGotdRPC(raw *tg.Client) gotdRPC {
	return gotdRPC{
		raw:    raw,
		rand:   crypto.DefaultRand(),
		sender: message.NewSender(raw),
	}
}

func (r gotdRPC) ResolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error) {
	peer, err := r.sender.Resolve(username).AsInputPeer(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve username %s: %w", username, err)
	}

	return peer, nil
}

func (r gotdRPC) GetChannels(ctx context.Context, channels []tg.InputChannelClass) ([]tg.ChatClass, error) {
	result, err := r.raw.ChannelsGetChannels(ctx, channels)
	if err != nil {
		return nil, fmt.Errorf("get channels: %w", err)
	}

	switch typed := result.(type) {
	case *tg.MessagesChats:
		return typed.Chats, nil
	case *tg.MessagesChatsSlice:
		return typed.Chats, nil
	default:
		return nil, nil
	}
}

func (r gotdRPC) GetUsers(ctx context.Context, users []tg.InputUserClass) ([]tg.UserClass, error) {
	result, err := r.raw.UsersGetUsers(ctx, users)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}

	return result, nil
}

func (r gotdRPC) GetChannelMessages(
	ctx context.Context,
	channel tg.InputChannelClass,
	ids []int,
) (tg.MessagesMessagesClass, error) {
	inputIDs := make([]tg.InputMessageClass, 0, len(ids))
	for _, id := range ids {
		inputIDs = append(inputIDs, &tg.InputMessageID{ID: id})
	}

	result, err := r.raw.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: channel,
		ID:      inputIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("get channel messages: %w", err)
	}

	return result, nil
}

func (r gotdRPC) GetHistory(
	ctx context.Context,
	request *tg.MessagesGetHistoryRequest,
) (tg.MessagesMessagesClass, error) {
	result, err := r.raw.MessagesGetHistory(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	return result, nil
}

func (r gotdRPC) SendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error) {
	updates, err := r.raw.MessagesSendMessage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	return updates, nil
}

func (r gotdRPC) SendMedia(ctx context.Context, request *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error) {
	updates, err := r.raw.MessagesSendMedia(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("send media: %w", err)
	}

	return updates, nil
}

func (r gotdRPC) SendMultiMedia(
	ctx context.Context,
	request *tg.MessagesSendMultiMediaRequest,
) (tg.UpdatesClass, error) {
	updates, err := r.raw.MessagesSendMultiMedia(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("send multi media: %w", err)
	}

	return updates, nil
}

func (r gotdRPC) DeleteMessages(ctx context.Context, peer tg.InputPeerClass, ids []int) error {
	if _, err := r.sender.To(peer).Revoke().Messages(ctx, ids...); err != nil {
		return fmt.Errorf("revoke delete messages: %w", err)
	}

	return nil
}

func (r gotdRPC) RandomID() (int64, error) {
	id, err := crypto.RandInt64(r.rand)
	if err != nil {
		return 0, fmt.Errorf("random id: %w", err)
	}

	return id, nil
}
