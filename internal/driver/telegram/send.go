package telegram

import (
	"fmt"
	"sort"
	"strings"

	"relaybot/pkg/relay"

	"github.com/gotd/td/telegram/message/entity"
	"github.com/gotd/td/telegram/message/html"
	"github.com/gotd/td/tg"
)

// outgoingBody renders outgoing text into the message string and entity list
// of one send request.
func outgoingBody(text relay.OutgoingText) (string, []tg.MessageEntityClass, error) {
	switch text.Mode {
	case relay.ParseModeEntities:
		entities, err := mapOutboundTextEntities(text.Text, text.Entities)
		if err != nil {
			return "", nil, fmt.Errorf("map outbound entities: %w", err)
		}
		return text.Text, entities, nil
	case relay.ParseModeHTML:
		return parseHTML(text.Text)
	default:
		return "", nil, fmt.Errorf("%w: unsupported parse mode %q", relay.ErrInvalidOutboundRequest, text.Mode)
	}
}

// parseHTML converts Telegram HTML markup into plain text and entities.
func parseHTML(markup string) (string, []tg.MessageEntityClass, error) {
	var builder entity.Builder
	if err := html.HTML(strings.NewReader(markup), &builder, html.Options{
		UserResolver: resolveMentionUser,
	}); err != nil {
		return "", nil, fmt.Errorf("%w: parse html: %w", relay.ErrInvalidOutboundRequest, err)
	}

	text, entities := builder.Complete()

	return text, entities, nil
}

func resolveMentionUser(id int64) (tg.InputUserClass, error) {
	return &tg.InputUser{UserID: id}, nil
}

// sentMessageIDs extracts the ids of messages created by one send call in
// ascending order.
func sentMessageIDs(updates tg.UpdatesClass) []int {
	var list []tg.UpdateClass
	switch typed := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return []int{typed.ID}
	case *tg.Updates:
		list = typed.Updates
	case *tg.UpdatesCombined:
		list = typed.Updates
	default:
		return nil
	}

	var created, assigned []int
	for _, update := range list {
		switch typed := update.(type) {
		case *tg.UpdateNewMessage:
			created = append(created, typed.Message.GetID())
		case *tg.UpdateNewChannelMessage:
			created = append(created, typed.Message.GetID())
		case *tg.UpdateMessageID:
			assigned = append(assigned, typed.ID)
		}
	}
	if len(created) == 0 {
		created = assigned
	}
	sort.Ints(created)

	return created
}
