package telegram

import (
	"strconv"
	"strings"
	"sync"

	"github.com/gotd/td/tg"
)

// PeerCache stores Telegram input peers discovered from updates and RPC
// responses.
//
// Users are keyed by id; channels by id and by lowercase username so both
// public handles and t.me/c/ references resolve without another RPC.
type PeerCache struct {
	mu    sync.RWMutex
	byKey map[string]tg.InputPeerClass
}

// NewPeerCache creates an empty, concurrency-safe Telegram peer cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{
		byKey: make(map[string]tg.InputPeerClass),
	}
}

// RememberEntities ingests users and channels attached to one update batch.
func (c *PeerCache) RememberEntities(entities tg.Entities) {
	if c == nil {
		return
	}

	for _, user := range entities.Users {
		c.rememberUser(user)
	}
	for _, channel := range entities.Channels {
		c.rememberChannel(channel)
	}
}

// RememberUsers ingests users returned by an RPC response.
func (c *PeerCache) RememberUsers(users []tg.UserClass) {
	if c == nil {
		return
	}

	for _, user := range users {
		if typed, ok := user.(*tg.User); ok {
			c.rememberUser(typed)
		}
	}
}

// RememberChats ingests channels returned by an RPC response.
func (c *PeerCache) RememberChats(chats []tg.ChatClass) {
	if c == nil {
		return
	}

	for _, chat := range chats {
		if typed, ok := chat.(*tg.Channel); ok {
			c.rememberChannel(typed)
		}
	}
}

func (c *PeerCache) rememberUser(user *tg.User) {
	if user == nil || user.Min {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[userKey(user.ID)] = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
}

func (c *PeerCache) rememberChannel(channel *tg.Channel) {
	if channel == nil || channel.Min {
		return
	}
	peer := &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[channelIDKey(channel.ID)] = peer
	if channel.Username != "" {
		c.byKey[channelHandleKey(channel.Username)] = cloneInputPeer(peer)
	}
}

// RememberHandle stores a resolved public handle.
func (c *PeerCache) RememberHandle(handle string, peer tg.InputPeerClass) {
	if c == nil || peer == nil || handle == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[channelHandleKey(handle)] = cloneInputPeer(peer)
	if channel, ok := peer.(*tg.InputPeerChannel); ok {
		c.byKey[channelIDKey(channel.ChannelID)] = cloneInputPeer(peer)
	}
}

// User returns the cached peer of a user.
func (c *PeerCache) User(userID int64) (tg.InputPeerClass, bool) {
	return c.lookup(userKey(userID))
}

// ChannelByHandle returns the cached peer of a public channel.
func (c *PeerCache) ChannelByHandle(handle string) (tg.InputPeerClass, bool) {
	return c.lookup(channelHandleKey(handle))
}

// ChannelByID returns the cached peer of a channel by its raw id.
func (c *PeerCache) ChannelByID(channelID int64) (tg.InputPeerClass, bool) {
	return c.lookup(channelIDKey(channelID))
}

func (c *PeerCache) lookup(key string) (tg.InputPeerClass, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	peer, ok := c.byKey[key]
	if !ok {
		return nil, false
	}

	return cloneInputPeer(peer), true
}

func userKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

func channelIDKey(id int64) string {
	return "channel:" + strconv.FormatInt(id, 10)
}

func channelHandleKey(handle string) string {
	return "handle:" + strings.ToLower(strings.TrimPrefix(handle, "@"))
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChat:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChannel:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerSelf:
		copyPeer := *typed
		return &copyPeer
	default:
		return peer
	}
}

func inputChannelOf(peer tg.InputPeerClass) (*tg.InputChannel, bool) {
	channel, ok := peer.(*tg.InputPeerChannel)
	if !ok {
		return nil, false
	}

	return &tg.InputChannel{ChannelID: channel.ChannelID, AccessHash: channel.AccessHash}, true
}
