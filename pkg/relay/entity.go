package relay

import (
	"fmt"
	"unicode/utf16"
)

// TextEntityType identifies the formatting kind of one text entity.
type TextEntityType string

const (
	// TextEntityTypeUnknown marks an entity kind the platform did not name.
	TextEntityTypeUnknown TextEntityType = "unknown"
	// TextEntityTypeMention marks an @handle mention.
	TextEntityTypeMention TextEntityType = "mention"
	// TextEntityTypeHashtag marks a #hashtag.
	TextEntityTypeHashtag TextEntityType = "hashtag"
	// TextEntityTypeBotCommand marks a /command.
	TextEntityTypeBotCommand TextEntityType = "bot_command"
	// TextEntityTypeURL marks a bare URL.
	TextEntityTypeURL TextEntityType = "url"
	// TextEntityTypeEmail marks an email address.
	TextEntityTypeEmail TextEntityType = "email"
	// TextEntityTypeBold marks bold text.
	TextEntityTypeBold TextEntityType = "bold"
	// TextEntityTypeItalic marks italic text.
	TextEntityTypeItalic TextEntityType = "italic"
	// TextEntityTypeCode marks inline monospace text.
	TextEntityTypeCode TextEntityType = "code"
	// TextEntityTypePre marks a preformatted block with an optional language.
	TextEntityTypePre TextEntityType = "pre"
	// TextEntityTypeTextURL marks text linking to URL.
	TextEntityTypeTextURL TextEntityType = "text_url"
	// TextEntityTypeMentionName marks a mention of a user without a handle.
	TextEntityTypeMentionName TextEntityType = "mention_name"
	// TextEntityTypePhone marks a phone number.
	TextEntityTypePhone TextEntityType = "phone"
	// TextEntityTypeCashtag marks a $cashtag.
	TextEntityTypeCashtag TextEntityType = "cashtag"
	// TextEntityTypeBankCard marks a bank card number.
	TextEntityTypeBankCard TextEntityType = "bank_card"
	// TextEntityTypeUnderline marks underlined text.
	TextEntityTypeUnderline TextEntityType = "underline"
	// TextEntityTypeStrike marks struck-through text.
	TextEntityTypeStrike TextEntityType = "strike"
	// TextEntityTypeBlockquote marks a quotation block.
	TextEntityTypeBlockquote TextEntityType = "blockquote"
	// TextEntityTypeSpoiler marks hidden spoiler text.
	TextEntityTypeSpoiler TextEntityType = "spoiler"
	// TextEntityTypeCustomEmoji marks a custom emoji sticker.
	TextEntityTypeCustomEmoji TextEntityType = "custom_emoji"
)

// TextEntity is one formatting span over message text.
//
// Offset and Length are UTF-16 code units. Only the payload field matching
// Type is meaningful.
type TextEntity struct {
	// Type identifies the formatting kind.
	Type TextEntityType
	// Offset is the zero-based start of the span.
	Offset int
	// Length is the size of the span.
	Length int
	// URL is the link target for text_url entities.
	URL string
	// Language is the code language for pre entities.
	Language string
	// MentionUserID is the user identifier for mention_name entities.
	MentionUserID int64
	// CustomEmojiID is the document identifier for custom_emoji entities.
	CustomEmojiID int64
	// Collapsed reports whether a blockquote is rendered collapsed.
	Collapsed bool
}

// End returns the exclusive end of the entity span.
func (e TextEntity) End() int {
	return e.Offset + e.Length
}

// WithSpan returns a copy of e placed at offset with length, carrying over
// only the payload valid for its kind.
func (e TextEntity) WithSpan(offset int, length int) TextEntity {
	out := TextEntity{Type: e.Type, Offset: offset, Length: length}
	switch e.Type {
	case TextEntityTypeTextURL:
		out.URL = e.URL
	case TextEntityTypePre:
		out.Language = e.Language
	case TextEntityTypeMentionName:
		out.MentionUserID = e.MentionUserID
	case TextEntityTypeCustomEmoji:
		out.CustomEmojiID = e.CustomEmojiID
	case TextEntityTypeBlockquote:
		out.Collapsed = e.Collapsed
	case TextEntityTypeUnknown,
		TextEntityTypeMention,
		TextEntityTypeHashtag,
		TextEntityTypeBotCommand,
		TextEntityTypeURL,
		TextEntityTypeEmail,
		TextEntityTypeBold,
		TextEntityTypeItalic,
		TextEntityTypeCode,
		TextEntityTypePhone,
		TextEntityTypeCashtag,
		TextEntityTypeBankCard,
		TextEntityTypeUnderline,
		TextEntityTypeStrike,
		TextEntityTypeSpoiler:
	default:
		out.Type = TextEntityTypeUnknown
	}

	return out
}

// WithOffset returns a copy of e moved to offset with its length unchanged.
func (e TextEntity) WithOffset(offset int) TextEntity {
	return e.WithSpan(offset, e.Length)
}

// Validate checks one entity against a text of textLength UTF-16 units.
func (e TextEntity) Validate(textLength int) error {
	if e.Type == "" {
		return fmt.Errorf("missing type")
	}
	if e.Offset < 0 {
		return fmt.Errorf("negative offset %d", e.Offset)
	}
	if e.Length <= 0 {
		return fmt.Errorf("non-positive length %d", e.Length)
	}
	if e.End() > textLength {
		return fmt.Errorf("span [%d,%d) exceeds text length %d", e.Offset, e.End(), textLength)
	}
	switch e.Type {
	case TextEntityTypeTextURL:
		if e.URL == "" {
			return fmt.Errorf("text_url requires url")
		}
	case TextEntityTypeMentionName:
		if e.MentionUserID <= 0 {
			return fmt.Errorf("mention_name requires user id")
		}
	case TextEntityTypeCustomEmoji:
		if e.CustomEmojiID <= 0 {
			return fmt.Errorf("custom_emoji requires document id")
		}
	}

	return nil
}

// ValidateTextEntities checks that every entity fits inside text.
func ValidateTextEntities(text string, entities []TextEntity) error {
	length := TextLength(text)
	for index, entity := range entities {
		if err := entity.Validate(length); err != nil {
			return fmt.Errorf("%w: entity[%d] %s: %w", ErrInvalidOutboundRequest, index, entity.Type, err)
		}
	}

	return nil
}

// ClipEntities keeps entities that fit inside a text of textLength units,
// truncating ones that run past its end.
func ClipEntities(entities []TextEntity, textLength int) []TextEntity {
	if len(entities) == 0 {
		return nil
	}

	out := make([]TextEntity, 0, len(entities))
	for _, entity := range entities {
		if entity.Offset < 0 || entity.Offset >= textLength || entity.Length <= 0 {
			continue
		}
		end := entity.End()
		if end > textLength {
			end = textLength
		}
		out = append(out, entity.WithSpan(entity.Offset, end-entity.Offset))
	}
	if len(out) == 0 {
		return nil
	}

	return out
}

// ShiftEntities returns copies of entities moved by delta units.
func ShiftEntities(entities []TextEntity, delta int) []TextEntity {
	if len(entities) == 0 {
		return nil
	}

	out := make([]TextEntity, 0, len(entities))
	for _, entity := range entities {
		out = append(out, entity.WithOffset(entity.Offset+delta))
	}

	return out
}

// TextLength returns the length of text in UTF-16 code units.
func TextLength(text string) int {
	length := 0
	for _, value := range text {
		length += utf16.RuneLen(value)
	}

	return length
}

// EncodeText converts text to UTF-16 code units.
func EncodeText(text string) []uint16 {
	return utf16.Encode([]rune(text))
}

// DecodeText converts UTF-16 code units back to a string.
func DecodeText(units []uint16) string {
	return string(utf16.Decode(units))
}
