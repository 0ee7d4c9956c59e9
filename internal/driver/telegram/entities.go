package telegram

import (
	"fmt"

	"relaybot/pkg/relay"

	"github.com/gotd/td/tg"
)

// Telegram entity offsets are UTF-16 code units, the same unit relay uses, so
// spans are copied without conversion.

func mapTextEntities(entities []tg.MessageEntityClass) []relay.TextEntity {
	if len(entities) == 0 {
		return nil
	}

	out := make([]relay.TextEntity, 0, len(entities))
	for _, entity := range entities {
		if entity == nil {
			continue
		}

		mapped := relay.TextEntity{
			Type:   mapTextEntityTypeFromTelegram(entity),
			Offset: entity.GetOffset(),
			Length: entity.GetLength(),
		}
		switch typed := entity.(type) {
		case *tg.MessageEntityPre:
			mapped.Language = typed.Language
		case *tg.MessageEntityTextURL:
			mapped.URL = typed.URL
		case *tg.MessageEntityMentionName:
			mapped.MentionUserID = typed.UserID
		case *tg.MessageEntityCustomEmoji:
			mapped.CustomEmojiID = typed.DocumentID
		case *tg.MessageEntityBlockquote:
			mapped.Collapsed = typed.Collapsed
		}
		out = append(out, mapped)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

func mapTextEntityTypeFromTelegram(entity tg.MessageEntityClass) relay.TextEntityType {
	switch entity.(type) {
	case *tg.MessageEntityMention:
		return relay.TextEntityTypeMention
	case *tg.MessageEntityHashtag:
		return relay.TextEntityTypeHashtag
	case *tg.MessageEntityBotCommand:
		return relay.TextEntityTypeBotCommand
	case *tg.MessageEntityURL:
		return relay.TextEntityTypeURL
	case *tg.MessageEntityEmail:
		return relay.TextEntityTypeEmail
	case *tg.MessageEntityBold:
		return relay.TextEntityTypeBold
	case *tg.MessageEntityItalic:
		return relay.TextEntityTypeItalic
	case *tg.MessageEntityCode:
		return relay.TextEntityTypeCode
	case *tg.MessageEntityPre:
		return relay.TextEntityTypePre
	case *tg.MessageEntityTextURL:
		return relay.TextEntityTypeTextURL
	case *tg.MessageEntityMentionName:
		return relay.TextEntityTypeMentionName
	case *tg.MessageEntityPhone:
		return relay.TextEntityTypePhone
	case *tg.MessageEntityCashtag:
		return relay.TextEntityTypeCashtag
	case *tg.MessageEntityBankCard:
		return relay.TextEntityTypeBankCard
	case *tg.MessageEntityUnderline:
		return relay.TextEntityTypeUnderline
	case *tg.MessageEntityStrike:
		return relay.TextEntityTypeStrike
	case *tg.MessageEntityBlockquote:
		return relay.TextEntityTypeBlockquote
	case *tg.MessageEntitySpoiler:
		return relay.TextEntityTypeSpoiler
	case *tg.MessageEntityCustomEmoji:
		return relay.TextEntityTypeCustomEmoji
	default:
		return relay.TextEntityTypeUnknown
	}
}

func mapOutboundTextEntities(text string, entities []relay.TextEntity) ([]tg.MessageEntityClass, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	if err := relay.ValidateTextEntities(text, entities); err != nil {
		return nil, err
	}

	converted := make([]tg.MessageEntityClass, 0, len(entities))
	for index, entity := range entities {
		telegramEntity, err := convertOutboundTextEntity(entity)
		if err != nil {
			return nil, fmt.Errorf("entity[%d] convert: %w", index, err)
		}
		converted = append(converted, telegramEntity)
	}

	return converted, nil
}

func convertOutboundTextEntity(entity relay.TextEntity) (tg.MessageEntityClass, error) {
	offset, length := entity.Offset, entity.Length
	switch entity.Type {
	case relay.TextEntityTypeUnknown:
		return &tg.MessageEntityUnknown{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeMention:
		return &tg.MessageEntityMention{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeHashtag:
		return &tg.MessageEntityHashtag{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeBotCommand:
		return &tg.MessageEntityBotCommand{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeURL:
		return &tg.MessageEntityURL{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeEmail:
		return &tg.MessageEntityEmail{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeBold:
		return &tg.MessageEntityBold{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeItalic:
		return &tg.MessageEntityItalic{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeCode:
		return &tg.MessageEntityCode{Offset: offset, Length: length}, nil
	case relay.TextEntityTypePre:
		return &tg.MessageEntityPre{Offset: offset, Length: length, Language: entity.Language}, nil
	case relay.TextEntityTypeTextURL:
		return &tg.MessageEntityTextURL{Offset: offset, Length: length, URL: entity.URL}, nil
	case relay.TextEntityTypeMentionName:
		return &tg.InputMessageEntityMentionName{
			Offset: offset,
			Length: length,
			UserID: &tg.InputUser{UserID: entity.MentionUserID},
		}, nil
	case relay.TextEntityTypePhone:
		return &tg.MessageEntityPhone{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeCashtag:
		return &tg.MessageEntityCashtag{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeBankCard:
		return &tg.MessageEntityBankCard{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeUnderline:
		return &tg.MessageEntityUnderline{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeStrike:
		return &tg.MessageEntityStrike{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeBlockquote:
		return &tg.MessageEntityBlockquote{Collapsed: entity.Collapsed, Offset: offset, Length: length}, nil
	case relay.TextEntityTypeSpoiler:
		return &tg.MessageEntitySpoiler{Offset: offset, Length: length}, nil
	case relay.TextEntityTypeCustomEmoji:
		return &tg.MessageEntityCustomEmoji{Offset: offset, Length: length, DocumentID: entity.CustomEmojiID}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported text entity type %q", relay.ErrOutboundUnsupported, entity.Type)
	}
}
