package pipeline

import (
	"context"
	"errors"
	"testing"

	"relaybot/pkg/relay"
)

func TestResolveGroup(t *testing.T) {
	t.Parallel()

	channel := relay.HandleChannel("demo")
	client := newFakeClient(
		relay.RawMessage{ID: 9, Text: "before"},
		relay.RawMessage{ID: 12, Text: "third", GroupID: 7},
		relay.RawMessage{ID: 10, Text: "first", GroupID: 7},
		relay.RawMessage{ID: 11, GroupID: 7},
		relay.RawMessage{ID: 13, Text: "other group", GroupID: 8},
		relay.RawMessage{ID: 20, Text: "single"},
		relay.RawMessage{ID: 21, Service: true},
	)

	tests := []struct {
		name    string
		target  int
		wantIDs []int
		wantErr error
	}{
		{name: "album member returns whole group", target: 11, wantIDs: []int{10, 11, 12}},
		{name: "neighbor group is excluded", target: 13, wantIDs: []int{13}},
		{name: "ungrouped message stands alone", target: 20, wantIDs: []int{20}},
		{name: "missing target", target: 15, wantErr: relay.ErrNotFound},
		{name: "service target", target: 21, wantErr: relay.ErrNotFound},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			group, err := ResolveGroup(context.Background(), client, relay.MessageRef{Channel: channel, ID: testCase.target}, DefaultGroupWindow)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("error = %v, want %v", err, testCase.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveGroup failed: %v", err)
			}
			if len(group) != len(testCase.wantIDs) {
				t.Fatalf("group size = %d, want %d", len(group), len(testCase.wantIDs))
			}
			for i, message := range group {
				if message.ID != testCase.wantIDs[i] {
					t.Fatalf("group[%d].ID = %d, want %d", i, message.ID, testCase.wantIDs[i])
				}
			}
		})
	}
}

func TestResolveGroupWindowStartsAtOne(t *testing.T) {
	t.Parallel()

	client := newFakeClient(relay.RawMessage{ID: 3, Text: "early"})
	if _, err := ResolveGroup(context.Background(), client, relay.MessageRef{Channel: relay.HandleChannel("demo"), ID: 3}, 10); err != nil {
		t.Fatalf("ResolveGroup failed: %v", err)
	}

	ids := client.fetches[0]
	if ids[0] != 1 {
		t.Fatalf("first fetched id = %d, want 1", ids[0])
	}
	if last := ids[len(ids)-1]; last != 13 {
		t.Fatalf("last fetched id = %d, want 13", last)
	}
	if len(ids) != 13 {
		t.Fatalf("fetched %d ids, want 13", len(ids))
	}
}

func TestResolveGroupRejectsInvalidID(t *testing.T) {
	t.Parallel()

	_, err := ResolveGroup(context.Background(), newFakeClient(), relay.MessageRef{Channel: relay.HandleChannel("demo")}, 10)
	if !errors.Is(err, relay.ErrInvalidLink) {
		t.Fatalf("error = %v, want ErrInvalidLink", err)
	}
}
