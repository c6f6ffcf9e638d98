// Package server coordinates live WebSocket channels, room membership, and
// event dispatch for the roomtalk chat backend via the Registry type.
package server

import "sync"

// Channel is a live bidirectional connection as seen by the registry and the
// services. Deliver enqueues one outbound event; it must not block.
type Channel interface {
	Deliver(event any) error
	Close() error
}

// Registry tracks open channels by user identity and by room membership.
// All methods are safe for concurrent use from multiple sessions; a single
// mutex scope protects both maps so concurrent joins and leaves on the same
// room cannot lose updates.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]Channel
	rooms      map[string]map[Channel]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]Channel),
		rooms:      make(map[string]map[Channel]struct{}),
	}
}

// Takeover maps an identity to a channel, displacing any previous mapping.
// Last-register-wins: a reconnecting identity silently takes over its
// forwarding address, and the displaced channel keeps its room bindings.
// The displaced channel is returned so the caller can log the takeover.
func (r *Registry) Takeover(identity string, ch Channel) Channel {
	if identity == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.byIdentity[identity]
	r.byIdentity[identity] = ch
	if prev == ch {
		return nil
	}
	return prev
}

// Release removes the identity mapping, but only while it still points at
// the given channel. A stale channel disconnecting after a takeover must not
// tear down the mapping its successor owns.
func (r *Registry) Release(identity string, ch Channel) bool {
	if identity == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byIdentity[identity] != ch {
		return false
	}
	delete(r.byIdentity, identity)
	return true
}

// Lookup returns the channel currently registered for the identity.
func (r *Registry) Lookup(identity string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.byIdentity[identity]
	return ch, ok
}

// BindRoom adds the channel to the room's membership set.
func (r *Registry) BindRoom(roomID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[Channel]struct{})
		r.rooms[roomID] = members
	}
	members[ch] = struct{}{}
}

// UnbindRoom removes the channel from the room's membership set and drops
// the room entry once it is empty; an empty room has no broadcast target.
func (r *Registry) UnbindRoom(roomID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, ch)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// RoomMembers returns a snapshot of the channels currently bound to the
// room. The snapshot is safe to iterate while other sessions join or leave.
func (r *Registry) RoomMembers(roomID string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	snapshot := make([]Channel, 0, len(members))
	for ch := range members {
		snapshot = append(snapshot, ch)
	}
	return snapshot
}

// Channels returns a snapshot of every live channel the registry knows
// about, across both maps. Used for shutdown.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Channel]struct{})
	for _, ch := range r.byIdentity {
		seen[ch] = struct{}{}
	}
	for _, members := range r.rooms {
		for ch := range members {
			seen[ch] = struct{}{}
		}
	}

	snapshot := make([]Channel, 0, len(seen))
	for ch := range seen {
		snapshot = append(snapshot, ch)
	}
	return snapshot
}
