package relay

import (
	"errors"
	"testing"
)

func TestValidateTextEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		entities []TextEntity
		wantErr  bool
	}{
		{
			name: "empty entities are valid",
			text: "hello",
		},
		{
			name: "valid bold entity",
			text: "hello",
			entities: []TextEntity{
				{Type: TextEntityTypeBold, Offset: 0, Length: 5},
			},
		},
		{
			name: "valid text url entity",
			text: "click me",
			entities: []TextEntity{
				{Type: TextEntityTypeTextURL, Offset: 0, Length: 8, URL: "https://example.com"},
			},
		},
		{
			name: "emoji counts two units",
			text: "😀!",
			entities: []TextEntity{
				{Type: TextEntityTypeItalic, Offset: 0, Length: 3},
			},
		},
		{
			name: "missing type fails",
			text: "hello",
			entities: []TextEntity{
				{Offset: 0, Length: 5},
			},
			wantErr: true,
		},
		{
			name: "negative offset fails",
			text: "hello",
			entities: []TextEntity{
				{Type: TextEntityTypeBold, Offset: -1, Length: 1},
			},
			wantErr: true,
		},
		{
			name: "non-positive length fails",
			text: "hello",
			entities: []TextEntity{
				{Type: TextEntityTypeBold, Offset: 0, Length: 0},
			},
			wantErr: true,
		},
		{
			name: "span past text end fails",
			text: "hello",
			entities: []TextEntity{
				{Type: TextEntityTypeBold, Offset: 3, Length: 3},
			},
			wantErr: true,
		},
		{
			name: "text url without url fails",
			text: "hello",
			entities: []TextEntity{
				{Type: TextEntityTypeTextURL, Offset: 0, Length: 5},
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateTextEntities(testCase.text, testCase.entities)
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidOutboundRequest) {
					t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateTextEntities failed: %v", err)
			}
		})
	}
}

func TestTextEntityWithSpanKeepsOnlyKindPayload(t *testing.T) {
	t.Parallel()

	link := TextEntity{Type: TextEntityTypeTextURL, Offset: 1, Length: 2, URL: "https://a", Language: "go"}
	moved := link.WithOffset(10)
	if moved.Offset != 10 || moved.Length != 2 {
		t.Fatalf("span = [%d,%d), want [10,12)", moved.Offset, moved.End())
	}
	if moved.URL != "https://a" {
		t.Fatalf("url = %q, want https://a", moved.URL)
	}
	if moved.Language != "" {
		t.Fatalf("language = %q, want empty", moved.Language)
	}

	pre := TextEntity{Type: TextEntityTypePre, Length: 1, Language: "go"}.WithSpan(0, 4)
	if pre.Language != "go" {
		t.Fatalf("pre language = %q, want go", pre.Language)
	}

	odd := TextEntity{Type: "sparkle", Length: 1}.WithSpan(0, 1)
	if odd.Type != TextEntityTypeUnknown {
		t.Fatalf("unrecognized type = %q, want unknown", odd.Type)
	}
}

func TestClipEntities(t *testing.T) {
	t.Parallel()

	entities := []TextEntity{
		{Type: TextEntityTypeBold, Offset: 0, Length: 3},
		{Type: TextEntityTypeItalic, Offset: 4, Length: 10},
		{Type: TextEntityTypeCode, Offset: 8, Length: 2},
	}

	got := ClipEntities(entities, 6)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Offset != 4 || got[1].Length != 2 {
		t.Fatalf("clipped = [%d,%d), want [4,6)", got[1].Offset, got[1].End())
	}
	if ClipEntities(entities, 0) != nil {
		t.Fatal("ClipEntities(empty text) != nil")
	}
}

func TestTextLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{text: "", want: 0},
		{text: "abc", want: 3},
		{text: "中文", want: 2},
		{text: "a😀", want: 3},
	}
	for _, testCase := range tests {
		if got := TextLength(testCase.text); got != testCase.want {
			t.Fatalf("TextLength(%q) = %d, want %d", testCase.text, got, testCase.want)
		}
		if got := len(EncodeText(testCase.text)); got != testCase.want {
			t.Fatalf("len(EncodeText(%q)) = %d, want %d", testCase.text, got, testCase.want)
		}
		if got := DecodeText(EncodeText(testCase.text)); got != testCase.text {
			t.Fatalf("DecodeText(EncodeText(%q)) = %q", testCase.text, got)
		}
	}
}
