package telegram

import (
	"strconv"
	"strings"

	"relaybot/pkg/relay"

	"github.com/gotd/td/tg"
)

// mapMessageMedia converts fetched media into a re-sendable attachment whose
// Handle is the tg.InputMediaClass referencing the same file.
//
// Web page previews and other media without a stored file return nil.
func mapMessageMedia(media tg.MessageMediaClass) *relay.Media {
	switch typed := media.(type) {
	case *tg.MessageMediaPhoto:
		photoClass, ok := typed.GetPhoto()
		if !ok {
			return nil
		}
		photo, ok := photoClass.(*tg.Photo)
		if !ok {
			return nil
		}

		return &relay.Media{
			ID:   strconv.FormatInt(photo.ID, 10),
			Type: relay.MediaTypePhoto,
			Handle: &tg.InputMediaPhoto{
				Spoiler: typed.Spoiler,
				ID: &tg.InputPhoto{
					ID:            photo.ID,
					AccessHash:    photo.AccessHash,
					FileReference: photo.FileReference,
				},
			},
		}
	case *tg.MessageMediaDocument:
		documentClass, ok := typed.GetDocument()
		if !ok {
			return nil
		}
		document, ok := documentClass.(*tg.Document)
		if !ok {
			return nil
		}

		return &relay.Media{
			ID:   strconv.FormatInt(document.ID, 10),
			Type: mediaTypeFromDocument(document.MimeType, document.Attributes),
			Handle: &tg.InputMediaDocument{
				Spoiler: typed.Spoiler,
				ID: &tg.InputDocument{
					ID:            document.ID,
					AccessHash:    document.AccessHash,
					FileReference: document.FileReference,
				},
			},
		}
	default:
		return nil
	}
}

func mediaTypeFromDocument(mimeType string, attributes []tg.DocumentAttributeClass) relay.MediaType {
	for _, attribute := range attributes {
		switch attribute.(type) {
		case *tg.DocumentAttributeAnimated:
			return relay.MediaTypeAnimation
		case *tg.DocumentAttributeAudio:
			return relay.MediaTypeAudio
		case *tg.DocumentAttributeVideo:
			return relay.MediaTypeVideo
		}
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return relay.MediaTypePhoto
	case strings.HasPrefix(mimeType, "video/"):
		return relay.MediaTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return relay.MediaTypeAudio
	default:
		return relay.MediaTypeDocument
	}
}

// inputMediaOf extracts the sendable payload from one relay attachment.
func inputMediaOf(media relay.Media) (tg.InputMediaClass, bool) {
	input, ok := media.Handle.(tg.InputMediaClass)
	if !ok || input == nil {
		return nil, false
	}

	return input, true
}

// mapMessage converts one fetched message. Empty placeholders return false.
func mapMessage(message tg.MessageClass) (relay.RawMessage, bool) {
	switch typed := message.(type) {
	case *tg.Message:
		raw := relay.RawMessage{
			ID:       typed.ID,
			Text:     typed.Message,
			Entities: mapTextEntities(typed.Entities),
		}
		if groupID, ok := typed.GetGroupedID(); ok {
			raw.GroupID = groupID
		}
		if media, ok := typed.GetMedia(); ok {
			raw.Media = mapMessageMedia(media)
		}

		return raw, true
	case *tg.MessageService:
		return relay.RawMessage{ID: typed.ID, Service: true}, true
	default:
		return relay.RawMessage{}, false
	}
}
