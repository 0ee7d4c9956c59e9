// Package pipeline reconstructs media groups from a target message, merges
// their text and formatting, applies text rules, and delivers the result
// through a relay.MessagingClient.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"relaybot/pkg/relay"
)

// DefaultGroupWindow is how many ids before and after a target are fetched
// when looking for media-group siblings.
const DefaultGroupWindow = 10

// ResolveGroup returns the target message and every fetched sibling sharing
// its media group, sorted by id.
//
// Ids in [max(1, id-window), id+window] are fetched. relay.ErrNotFound is
// returned when the target itself is absent.
func ResolveGroup(
	ctx context.Context,
	client relay.MessagingClient,
	target relay.MessageRef,
	window int,
) ([]relay.RawMessage, error) {
	if target.ID < 1 {
		return nil, fmt.Errorf("resolve group: %w: message id %d", relay.ErrInvalidLink, target.ID)
	}
	if window < 0 {
		window = 0
	}

	start := target.ID - window
	if start < 1 {
		start = 1
	}
	ids := make([]int, 0, target.ID+window-start+1)
	for id := start; id <= target.ID+window; id++ {
		ids = append(ids, id)
	}

	fetched, err := client.FetchMessages(ctx, target.Channel, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve group fetch %s: %w", relay.BuildLink(target), err)
	}

	message, ok := fetched[target.ID]
	if !ok || message.Service {
		return nil, fmt.Errorf("resolve group %s: %w", relay.BuildLink(target), relay.ErrNotFound)
	}
	if !message.HasGroup() {
		return []relay.RawMessage{message}, nil
	}

	group := make([]relay.RawMessage, 0, len(fetched))
	for _, candidate := range fetched {
		if candidate.GroupID == message.GroupID && !candidate.Service {
			group = append(group, candidate)
		}
	}
	sort.Slice(group, func(i, j int) bool {
		return group[i].ID < group[j].ID
	})

	return group, nil
}
