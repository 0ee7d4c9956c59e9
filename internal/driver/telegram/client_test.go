package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"relaybot/pkg/relay"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

func TestClientFetchMessagesResolvesHandleOnce(t *testing.T) {
	t.Parallel()

	rpc := &stubRPC{
		resolved: &tg.InputPeerChannel{ChannelID: 77, AccessHash: 5},
		messages: &tg.MessagesChannelMessages{
			Messages: []tg.MessageClass{
				&tg.Message{ID: 10, Message: "one"},
				&tg.MessageEmpty{ID: 11},
				&tg.MessageService{ID: 12},
			},
		},
	}
	client := newTestClient(t, rpc)

	for i := 0; i < 2; i++ {
		got, err := client.FetchMessages(context.Background(), relay.HandleChannel("demo"), []int{10, 11, 12})
		if err != nil {
			t.Fatalf("FetchMessages failed: %v", err)
		}
		if len(got) != 2 || got[10].Text != "one" || !got[12].Service {
			t.Fatalf("messages = %+v, want text 10 and service 12", got)
		}
	}

	if rpc.resolveCalls != 1 {
		t.Fatalf("resolve calls = %d, want 1", rpc.resolveCalls)
	}
	channel, ok := rpc.fetchChannel.(*tg.InputChannel)
	if !ok || channel.ChannelID != 77 || channel.AccessHash != 5 {
		t.Fatalf("fetch channel = %#v, want channel 77", rpc.fetchChannel)
	}
}

func TestClientFetchMessagesPrivateChannel(t *testing.T) {
	t.Parallel()

	rpc := &stubRPC{
		chats:    []tg.ChatClass{&tg.Channel{ID: 123, AccessHash: 9}},
		messages: &tg.MessagesChannelMessages{},
	}
	client := newTestClient(t, rpc)

	if _, err := client.FetchMessages(context.Background(), relay.PrivateChannel(123), []int{55}); err != nil {
		t.Fatalf("FetchMessages failed: %v", err)
	}
	channel, ok := rpc.fetchChannel.(*tg.InputChannel)
	if !ok || channel.ChannelID != 123 || channel.AccessHash != 9 {
		t.Fatalf("fetch channel = %#v, want channel 123 with access hash", rpc.fetchChannel)
	}
}

func TestClientFetchMessagesInaccessibleChannel(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, &stubRPC{})

	_, err := client.FetchMessages(context.Background(), relay.PrivateChannel(404), []int{1})
	if kind := relay.OutboundErrorKindOf(err); kind != relay.OutboundErrorKindDestinationInvalid {
		t.Fatalf("kind = %s, want %s (err %v)", kind, relay.OutboundErrorKindDestinationInvalid, err)
	}
}

func TestClientSendText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		text         relay.OutgoingText
		sendErr      error
		wantKind     relay.OutboundErrorKind
		wantMessage  string
		wantEntities int
	}{
		{
			name: "entities",
			text: relay.OutgoingText{
				Text:     "hello",
				Entities: []relay.TextEntity{{Type: relay.TextEntityTypeBold, Offset: 0, Length: 5}},
			},
			wantMessage:  "hello",
			wantEntities: 1,
		},
		{
			name:         "html markup",
			text:         relay.OutgoingText{Text: "<b>hello</b>", Mode: relay.ParseModeHTML},
			wantMessage:  "hello",
			wantEntities: 1,
		},
		{
			name:     "flood wait",
			text:     relay.OutgoingText{Text: "hello"},
			sendErr:  tgerr.New(420, "FLOOD_WAIT_5"),
			wantKind: relay.OutboundErrorKindRateLimited,
		},
		{
			name:     "rejected entities",
			text:     relay.OutgoingText{Text: "hello"},
			sendErr:  tgerr.New(400, "ENTITY_BOUNDS_INVALID"),
			wantKind: relay.OutboundErrorKindFormatRejected,
		},
		{
			name:     "write forbidden",
			text:     relay.OutgoingText{Text: "hello"},
			sendErr:  tgerr.New(403, "CHAT_WRITE_FORBIDDEN"),
			wantKind: relay.OutboundErrorKindPermissionDenied,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			rpc := &stubRPC{
				users:   []tg.UserClass{&tg.User{ID: 42, AccessHash: 7}},
				sendErr: testCase.sendErr,
				updates: &tg.UpdateShortSentMessage{ID: 901},
			}
			client := newTestClient(t, rpc)

			ids, err := client.SendText(context.Background(), relay.UserDestination(42), testCase.text)
			if testCase.wantKind != "" {
				if kind := relay.OutboundErrorKindOf(err); kind != testCase.wantKind {
					t.Fatalf("kind = %s, want %s (err %v)", kind, testCase.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SendText failed: %v", err)
			}
			if len(ids) != 1 || ids[0] != 901 {
				t.Fatalf("ids = %v, want [901]", ids)
			}
			if rpc.sentText == nil {
				t.Fatal("send request not captured")
			}
			if rpc.sentText.Message != testCase.wantMessage {
				t.Fatalf("message = %q, want %q", rpc.sentText.Message, testCase.wantMessage)
			}
			if len(rpc.sentText.Entities) != testCase.wantEntities {
				t.Fatalf("entities = %d, want %d", len(rpc.sentText.Entities), testCase.wantEntities)
			}
			peer, ok := rpc.sentText.Peer.(*tg.InputPeerUser)
			if !ok || peer.AccessHash != 7 {
				t.Fatalf("peer = %#v, want user with access hash 7", rpc.sentText.Peer)
			}
		})
	}
}

func TestClientFloodWaitCarriesRetryAfter(t *testing.T) {
	t.Parallel()

	rpc := &stubRPC{
		users:   []tg.UserClass{&tg.User{ID: 42, AccessHash: 7}},
		sendErr: tgerr.New(420, "FLOOD_WAIT_5"),
	}
	client := newTestClient(t, rpc)

	_, err := client.SendText(context.Background(), relay.UserDestination(42), relay.OutgoingText{Text: "x"})
	wait, ok := relay.AsOutboundRateLimit(err)
	if !ok || wait != 5*time.Second {
		t.Fatalf("AsOutboundRateLimit = (%v, %v), want (5s, true)", wait, ok)
	}
}

func TestClientSendMediaAlbum(t *testing.T) {
	t.Parallel()

	rpc := &stubRPC{
		resolved: &tg.InputPeerChannel{ChannelID: 77, AccessHash: 5},
		updates: &tg.Updates{Updates: []tg.UpdateClass{
			&tg.UpdateMessageID{ID: 31, RandomID: 1},
			&tg.UpdateNewChannelMessage{Message: &tg.Message{ID: 32}},
			&tg.UpdateNewChannelMessage{Message: &tg.Message{ID: 31}},
		}},
	}
	client := newTestClient(t, rpc)

	media := []relay.Media{
		{ID: "1", Type: relay.MediaTypePhoto, Handle: &tg.InputMediaPhoto{ID: &tg.InputPhoto{ID: 1}}},
		{ID: "2", Type: relay.MediaTypeVideo, Handle: &tg.InputMediaDocument{ID: &tg.InputDocument{ID: 2}}},
	}
	caption := relay.OutgoingText{
		Text:     "caption",
		Entities: []relay.TextEntity{{Type: relay.TextEntityTypeItalic, Offset: 0, Length: 7}},
	}

	ids, err := client.SendMedia(context.Background(), relay.ChannelDestination(relay.HandleChannel("dest")), media, caption)
	if err != nil {
		t.Fatalf("SendMedia failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 31 || ids[1] != 32 {
		t.Fatalf("ids = %v, want [31 32]", ids)
	}
	if rpc.sentAlbum == nil || len(rpc.sentAlbum.MultiMedia) != 2 {
		t.Fatalf("album = %#v, want two items", rpc.sentAlbum)
	}
	first, second := rpc.sentAlbum.MultiMedia[0], rpc.sentAlbum.MultiMedia[1]
	if first.Message != "caption" || len(first.Entities) != 1 {
		t.Fatalf("first item = %#v, want caption with entity", first)
	}
	if second.Message != "" || len(second.Entities) != 0 {
		t.Fatalf("second item = %#v, want no caption", second)
	}
	if first.RandomID == second.RandomID {
		t.Fatalf("random ids repeat: %d", first.RandomID)
	}
}

func TestClientSendMediaRejectsForeignPayload(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, &stubRPC{})

	_, err := client.SendMedia(context.Background(), relay.UserDestination(42),
		[]relay.Media{{ID: "x", Handle: "not telegram"}}, relay.OutgoingText{})
	if !errors.Is(err, relay.ErrOutboundUnsupported) {
		t.Fatalf("error = %v, want ErrOutboundUnsupported", err)
	}
}

func TestClientDeleteMessagesBatches(t *testing.T) {
	t.Parallel()

	rpc := &stubRPC{users: []tg.UserClass{&tg.User{ID: 42, AccessHash: 7}}}
	client := newTestClient(t, rpc)

	ids := make([]int, 0, 150)
	for id := 1; id <= 150; id++ {
		ids = append(ids, id)
	}
	if err := client.DeleteMessages(context.Background(), relay.UserDestination(42), ids); err != nil {
		t.Fatalf("DeleteMessages failed: %v", err)
	}
	if len(rpc.deleted) != 2 || len(rpc.deleted[0]) != 100 || len(rpc.deleted[1]) != 50 {
		t.Fatalf("delete batches = %d, want 100 then 50", len(rpc.deleted))
	}
}

func TestClientIterateHistoryOldestFirst(t *testing.T) {
	t.Parallel()

	rpc := &stubRPC{
		resolved: &tg.InputPeerChannel{ChannelID: 77, AccessHash: 5},
		history: []tg.MessagesMessagesClass{
			&tg.MessagesChannelMessages{Count: 3, Messages: []tg.MessageClass{
				&tg.Message{ID: 3},
				&tg.MessageService{ID: 2},
				&tg.Message{ID: 1},
			}},
			&tg.MessagesChannelMessages{Count: 3},
		},
	}
	client := newTestClient(t, rpc)

	var got []int
	err := client.IterateHistory(context.Background(), relay.HandleChannel("demo"), func(message relay.RawMessage) error {
		got = append(got, message.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("IterateHistory failed: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("ids = %v, want [1 2 3]", got)
	}
	if len(rpc.historyRequests) != 2 {
		t.Fatalf("history requests = %d, want 2", len(rpc.historyRequests))
	}
	if second := rpc.historyRequests[1]; second.OffsetID != 4 || second.AddOffset != -historyPageSize {
		t.Fatalf("second request = %+v, want offset 4", second)
	}
}

func TestClientIterateHistoryStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	rpc := &stubRPC{
		resolved: &tg.InputPeerChannel{ChannelID: 77},
		history: []tg.MessagesMessagesClass{
			&tg.MessagesChannelMessages{Messages: []tg.MessageClass{&tg.Message{ID: 2}, &tg.Message{ID: 1}}},
		},
	}
	client := newTestClient(t, rpc)

	stop := errors.New("stop")
	calls := 0
	err := client.IterateHistory(context.Background(), relay.HandleChannel("demo"), func(relay.RawMessage) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("IterateHistory = (%v, calls %d), want stop after one call", err, calls)
	}
}

func TestClientLatestMessageID(t *testing.T) {
	t.Parallel()

	rpc := &stubRPC{
		resolved: &tg.InputPeerChannel{ChannelID: 77},
		history: []tg.MessagesMessagesClass{
			&tg.MessagesChannelMessages{Count: 40, Messages: []tg.MessageClass{&tg.Message{ID: 41}}},
			&tg.MessagesChannelMessages{},
		},
	}
	client := newTestClient(t, rpc)

	latest, err := client.LatestMessageID(context.Background(), relay.HandleChannel("demo"))
	if err != nil || latest != 41 {
		t.Fatalf("LatestMessageID = (%d, %v), want (41, nil)", latest, err)
	}
	if _, err := client.LatestMessageID(context.Background(), relay.HandleChannel("demo")); !errors.Is(err, relay.ErrNotFound) {
		t.Fatalf("empty history error = %v, want ErrNotFound", err)
	}
}

func TestSentMessageIDs(t *testing.T) {
	t.Parallel()

	got := sentMessageIDs(&tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateMessageID{ID: 8},
		&tg.UpdateMessageID{ID: 7},
	}})
	if len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Fatalf("ids = %v, want [7 8]", got)
	}
	if got := sentMessageIDs(&tg.UpdatesTooLong{}); got != nil {
		t.Fatalf("ids = %v, want nil", got)
	}
}

func newTestClient(t *testing.T, rpc *stubRPC) *Client {
	t.Helper()

	client, err := newClientWithRPC(rpc, NewPeerCache())
	if err != nil {
		t.Fatalf("newClientWithRPC failed: %v", err)
	}

	return client
}

type stubRPC struct {
	resolved     tg.InputPeerClass
	resolveCalls int
	chats        []tg.ChatClass
	users        []tg.UserClass

	messages     tg.MessagesMessagesClass
	fetchChannel tg.InputChannelClass

	history         []tg.MessagesMessagesClass
	historyRequests []tg.MessagesGetHistoryRequest

	updates   tg.UpdatesClass
	sendErr   error
	sentText  *tg.MessagesSendMessageRequest
	sentMedia *tg.MessagesSendMediaRequest
	sentAlbum *tg.MessagesSendMultiMediaRequest

	deleted [][]int
	nextID  int64
}

func (s *stubRPC) ResolveUsername(context.Context, string) (tg.InputPeerClass, error) {
	s.resolveCalls++
	if s.resolved == nil {
		return nil, tgerr.New(400, "USERNAME_NOT_OCCUPIED")
	}

	return s.resolved, nil
}

func (s *stubRPC) GetChannels(context.Context, []tg.InputChannelClass) ([]tg.ChatClass, error) {
	return s.chats, nil
}

func (s *stubRPC) GetUsers(context.Context, []tg.InputUserClass) ([]tg.UserClass, error) {
	return s.users, nil
}

func (s *stubRPC) GetChannelMessages(
	_ context.Context,
	channel tg.InputChannelClass,
	_ []int,
) (tg.MessagesMessagesClass, error) {
	s.fetchChannel = channel
	if s.messages == nil {
		return &tg.MessagesChannelMessages{}, nil
	}

	return s.messages, nil
}

func (s *stubRPC) GetHistory(
	_ context.Context,
	request *tg.MessagesGetHistoryRequest,
) (tg.MessagesMessagesClass, error) {
	s.historyRequests = append(s.historyRequests, *request)
	if len(s.history) == 0 {
		return &tg.MessagesChannelMessages{}, nil
	}
	page := s.history[0]
	s.history = s.history[1:]

	return page, nil
}

func (s *stubRPC) SendMessage(_ context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error) {
	s.sentText = request
	if s.sendErr != nil {
		return nil, s.sendErr
	}

	return s.updates, nil
}

func (s *stubRPC) SendMedia(_ context.Context, request *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error) {
	s.sentMedia = request
	if s.sendErr != nil {
		return nil, s.sendErr
	}

	return s.updates, nil
}

func (s *stubRPC) SendMultiMedia(
	_ context.Context,
	request *tg.MessagesSendMultiMediaRequest,
) (tg.UpdatesClass, error) {
	s.sentAlbum = request
	if s.sendErr != nil {
		return nil, s.sendErr
	}

	return s.updates, nil
}

func (s *stubRPC) DeleteMessages(_ context.Context, _ tg.InputPeerClass, ids []int) error {
	s.deleted = append(s.deleted, append([]int(nil), ids...))
	return nil
}

func (s *stubRPC) RandomID() (int64, error) {
	s.nextID++
	return s.nextID, nil
}
