package relay

import (
	"errors"
	"testing"
)

func TestParseLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		link    string
		want    MessageRef
		wantErr bool
	}{
		{
			name: "public handle",
			link: "https://t.me/demo/100",
			want: MessageRef{Channel: ChannelRef{Handle: "demo"}, ID: 100},
		},
		{
			name: "plain http",
			link: "http://t.me/demo/7",
			want: MessageRef{Channel: ChannelRef{Handle: "demo"}, ID: 7},
		},
		{
			name: "private channel",
			link: "https://t.me/c/123/55",
			want: MessageRef{Channel: ChannelRef{ID: -1000000000123}, ID: 55},
		},
		{
			name: "trailing query is ignored",
			link: "https://t.me/demo/100?single",
			want: MessageRef{Channel: ChannelRef{Handle: "demo"}, ID: 100},
		},
		{
			name:    "missing message id",
			link:    "https://t.me/demo",
			wantErr: true,
		},
		{
			name:    "other host",
			link:    "https://example.com/demo/1",
			wantErr: true,
		},
		{
			name:    "zero message id",
			link:    "https://t.me/demo/0",
			wantErr: true,
		},
		{
			name:    "plain text",
			link:    "hello",
			wantErr: true,
		},
		{
			name: "largest private channel id",
			link: "https://t.me/c/9223371036854775807/1",
			want: MessageRef{Channel: ChannelRef{ID: -9223372036854775807}, ID: 1},
		},
		{
			name:    "private channel id overflowing the reference",
			link:    "https://t.me/c/9223371036854775808/1",
			wantErr: true,
		},
		{
			name:    "private channel id at int64 limit",
			link:    "https://t.me/c/9223372036854775807/1",
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLink(testCase.link)
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidLink) {
					t.Fatalf("ParseLink error = %v, want ErrInvalidLink", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLink failed: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("ParseLink = %+v, want %+v", got, testCase.want)
			}
		})
	}
}

func TestLinkRoundTrip(t *testing.T) {
	t.Parallel()

	links := []string{
		"https://t.me/demo/100",
		"https://t.me/c/123/55",
		"https://t.me/c/1234567890/1",
		"https://t.me/some_channel/999999",
	}
	for _, link := range links {
		ref, err := ParseLink(link)
		if err != nil {
			t.Fatalf("ParseLink(%q) failed: %v", link, err)
		}
		if got := BuildLink(ref); got != link {
			t.Fatalf("BuildLink(ParseLink(%q)) = %q", link, got)
		}
		again, err := ParseLink(BuildLink(ref))
		if err != nil {
			t.Fatalf("ParseLink(BuildLink) failed: %v", err)
		}
		if again != ref {
			t.Fatalf("round trip = %+v, want %+v", again, ref)
		}
	}
}

func TestPrivateChannelRawID(t *testing.T) {
	t.Parallel()

	ref := PrivateChannel(123)
	if ref.ID != -1000000000123 {
		t.Fatalf("ID = %d, want -1000000000123", ref.ID)
	}
	if ref.RawID() != 123 {
		t.Fatalf("RawID = %d, want 123", ref.RawID())
	}
	if !ref.IsNumeric() {
		t.Fatal("IsNumeric = false, want true")
	}
}

func TestParseChannelRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    ChannelRef
		wantErr bool
	}{
		{input: "@target", want: ChannelRef{Handle: "target"}},
		{input: "target", want: ChannelRef{Handle: "target"}},
		{input: "https://t.me/target", want: ChannelRef{Handle: "target"}},
		{input: "https://t.me/c/123", want: ChannelRef{ID: -1000000000123}},
		{input: "-1001234567890", want: ChannelRef{ID: -1001234567890}},
		{input: "-42", wantErr: true},
		{input: "https://t.me/c/9223371036854775808", wantErr: true},
		{input: "-9223372036854775808", wantErr: true},
		{input: "", wantErr: true},
		{input: "@", wantErr: true},
	}

	for _, testCase := range tests {
		got, err := ParseChannelRef(testCase.input)
		if testCase.wantErr {
			if !errors.Is(err, ErrInvalidChannel) {
				t.Fatalf("ParseChannelRef(%q) error = %v, want ErrInvalidChannel", testCase.input, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseChannelRef(%q) failed: %v", testCase.input, err)
		}
		if got != testCase.want {
			t.Fatalf("ParseChannelRef(%q) = %+v, want %+v", testCase.input, got, testCase.want)
		}
	}
}

func TestSafeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{input: "@my_channel", want: "my_channel"},
		{input: "https://t.me/news-feed", want: "news-feed"},
		{input: "weird name!?", want: "weirdname"},
		{input: "频道abc", want: "abc"},
	}
	for _, testCase := range tests {
		if got := SafeName(testCase.input); got != testCase.want {
			t.Fatalf("SafeName(%q) = %q, want %q", testCase.input, got, testCase.want)
		}
	}

	if got := SafeChannelName(PrivateChannel(55)); got != "c55" {
		t.Fatalf("SafeChannelName(private) = %q, want c55", got)
	}
}
