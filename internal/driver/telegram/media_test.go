package telegram

import (
	"testing"

	"relaybot/pkg/relay"

	"github.com/gotd/td/tg"
)

func TestMapMessageMedia(t *testing.T) {
	t.Parallel()

	photo := mapMessageMedia(photoMedia(&tg.Photo{ID: 11, AccessHash: 22, FileReference: []byte{1}}))
	if photo == nil || photo.Type != relay.MediaTypePhoto || photo.ID != "11" {
		t.Fatalf("photo = %+v, want photo 11", photo)
	}
	input, ok := inputMediaOf(*photo)
	if !ok {
		t.Fatalf("inputMediaOf(photo) = false, want true")
	}
	inputPhoto, ok := input.(*tg.InputMediaPhoto)
	if !ok {
		t.Fatalf("input = %T, want *tg.InputMediaPhoto", input)
	}
	if ref, ok := inputPhoto.ID.(*tg.InputPhoto); !ok || ref.AccessHash != 22 {
		t.Fatalf("input photo = %#v, want access hash 22", inputPhoto.ID)
	}

	tests := []struct {
		name     string
		document *tg.Document
		want     relay.MediaType
	}{
		{
			name:     "video attribute",
			document: &tg.Document{ID: 1, Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{}}},
			want:     relay.MediaTypeVideo,
		},
		{
			name: "animation wins over video",
			document: &tg.Document{ID: 2, Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeAnimated{},
				&tg.DocumentAttributeVideo{},
			}},
			want: relay.MediaTypeAnimation,
		},
		{
			name:     "mime audio",
			document: &tg.Document{ID: 3, MimeType: "audio/ogg"},
			want:     relay.MediaTypeAudio,
		},
		{
			name:     "generic file",
			document: &tg.Document{ID: 4, MimeType: "application/pdf"},
			want:     relay.MediaTypeDocument,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := mapMessageMedia(documentMedia(testCase.document))
			if got == nil {
				t.Fatal("mapMessageMedia = nil, want media")
			}
			if got.Type != testCase.want {
				t.Fatalf("type = %q, want %q", got.Type, testCase.want)
			}
			if _, ok := got.Handle.(*tg.InputMediaDocument); !ok {
				t.Fatalf("handle = %T, want *tg.InputMediaDocument", got.Handle)
			}
		})
	}

	if got := mapMessageMedia(&tg.MessageMediaWebPage{}); got != nil {
		t.Fatalf("web page media = %+v, want nil", got)
	}
}

func TestMapMessage(t *testing.T) {
	t.Parallel()

	message := &tg.Message{
		ID:       7,
		Message:  "caption",
		Entities: []tg.MessageEntityClass{&tg.MessageEntityBold{Offset: 0, Length: 3}},
	}
	message.SetGroupedID(99)
	message.SetMedia(photoMedia(&tg.Photo{ID: 5}))

	raw, ok := mapMessage(message)
	if !ok {
		t.Fatal("mapMessage = false, want true")
	}
	if raw.ID != 7 || raw.GroupID != 99 || raw.Media == nil || len(raw.Entities) != 1 {
		t.Fatalf("raw = %+v, want grouped message with media and entity", raw)
	}

	service, ok := mapMessage(&tg.MessageService{ID: 8})
	if !ok || !service.Service {
		t.Fatalf("service = %+v, want service message", service)
	}
	if _, ok := mapMessage(&tg.MessageEmpty{ID: 9}); ok {
		t.Fatal("mapMessage(empty) = true, want false")
	}
}

// photoMedia and documentMedia set the flags decoded updates carry.
func photoMedia(photo tg.PhotoClass) *tg.MessageMediaPhoto {
	media := &tg.MessageMediaPhoto{}
	media.SetPhoto(photo)
	return media
}

func documentMedia(document tg.DocumentClass) *tg.MessageMediaDocument {
	media := &tg.MessageMediaDocument{}
	media.SetDocument(document)
	return media
}
