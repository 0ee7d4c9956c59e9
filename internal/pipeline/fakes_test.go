package pipeline

import (
	"context"
	"sync"
	"time"

	"relaybot/pkg/relay"
)

type sendCall struct {
	dest  relay.Destination
	media []relay.Media
	text  relay.OutgoingText
}

type fakeClient struct {
	mu       sync.Mutex
	messages map[int]relay.RawMessage
	fetchErr []error
	sendErr  []error
	nextID   int
	fetches  [][]int
	sends    []sendCall
}

func newFakeClient(messages ...relay.RawMessage) *fakeClient {
	byID := make(map[int]relay.RawMessage, len(messages))
	for _, message := range messages {
		byID[message.ID] = message
	}

	return &fakeClient{messages: byID, nextID: 500}
}

func (c *fakeClient) FetchMessages(_ context.Context, _ relay.ChannelRef, ids []int) (map[int]relay.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetches = append(c.fetches, append([]int(nil), ids...))
	if len(c.fetchErr) > 0 {
		err := c.fetchErr[0]
		c.fetchErr = c.fetchErr[1:]
		if err != nil {
			return nil, err
		}
	}

	out := make(map[int]relay.RawMessage)
	for _, id := range ids {
		if message, ok := c.messages[id]; ok {
			out[id] = message
		}
	}

	return out, nil
}

func (c *fakeClient) SendText(_ context.Context, dest relay.Destination, text relay.OutgoingText) ([]int, error) {
	return c.record(sendCall{dest: dest, text: text}, 1)
}

func (c *fakeClient) SendMedia(
	_ context.Context,
	dest relay.Destination,
	media []relay.Media,
	caption relay.OutgoingText,
) ([]int, error) {
	return c.record(sendCall{dest: dest, media: append([]relay.Media(nil), media...), text: caption}, len(media))
}

func (c *fakeClient) DeleteMessages(context.Context, relay.Destination, []int) error {
	return nil
}

func (c *fakeClient) record(call sendCall, count int) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sends = append(c.sends, call)
	if len(c.sendErr) > 0 {
		err := c.sendErr[0]
		c.sendErr = c.sendErr[1:]
		if err != nil {
			return nil, err
		}
	}

	ids := make([]int, 0, count)
	for i := 0; i < count; i++ {
		c.nextID++
		ids = append(ids, c.nextID)
	}

	return ids, nil
}

func (c *fakeClient) sentCalls() []sendCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]sendCall(nil), c.sends...)
}

// fakeTimer fires immediately and records every requested wait.
type fakeTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	ch    chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{ch: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(duration time.Duration) {
	t.mu.Lock()
	t.waits = append(t.waits, duration)
	t.mu.Unlock()
	t.ch <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTimer) recorded() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]time.Duration(nil), t.waits...)
}

type fakeRules struct {
	apply    func(string) string
	keywords []string
}

func (r fakeRules) Apply(text string) string {
	if r.apply == nil {
		return text
	}

	return r.apply(text)
}

func (r fakeRules) AdKeywords() []string {
	return r.keywords
}

type fakeSessions struct {
	mu   sync.Mutex
	sent map[int64][]int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sent: make(map[int64][]int)}
}

func (s *fakeSessions) RecordSent(_ context.Context, userID int64, ids ...int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent[userID] = append(s.sent[userID], ids...)
	return nil
}

func (s *fakeSessions) RecordCommand(context.Context, int64, ...int) error {
	return nil
}

func (s *fakeSessions) DrainForDeletion(context.Context, int64) (relay.TrackedMessages, error) {
	return relay.TrackedMessages{}, nil
}

func (s *fakeSessions) SetStopFlag(context.Context, int64, bool) error {
	return nil
}

func (s *fakeSessions) CheckStopFlag(context.Context, int64) (bool, error) {
	return false, nil
}

func (s *fakeSessions) sentTo(userID int64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]int(nil), s.sent[userID]...)
}

func rateLimited(wait time.Duration) error {
	return &relay.OutboundError{
		Operation:  relay.OutboundOperationSendText,
		Kind:       relay.OutboundErrorKindRateLimited,
		RetryAfter: wait,
		Code:       420,
		Type:       "FLOOD_WAIT",
	}
}
