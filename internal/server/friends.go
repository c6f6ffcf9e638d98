// Package server implements the friend operations: the four-way add
// classification over a shared 1:1 room, and the one-sided remove.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/roomtalk/roomtalk/internal/store"
)

// FriendService manages bidirectional friend links, each backed by an
// implicit room of kind "friend" containing exactly the two users.
type FriendService struct {
	gateway  Gateway
	registry *Registry
}

// NewFriendService creates a FriendService on the given gateway and registry.
func NewFriendService(gateway Gateway, registry *Registry) *FriendService {
	return &FriendService{gateway: gateway, registry: registry}
}

// AddFriend classifies the request into exactly one of four outcomes:
//
//  1. already friends: reply friend_existed, no mutation;
//  2. the other side already links back to the requester: complete the
//     one-sided link reusing their friend_room_id, never a second room;
//  3. both users resolve and are unrelated: create the shared friend room,
//     link both documents to it, and notify the friend if connected;
//  4. either email resolves to no user: reply friend_not_found.
func (s *FriendService) AddFriend(ctx context.Context, ch Channel, ev AddFriend) error {
	user, err := s.gateway.UserByEmail(ctx, ev.UserEmail)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("resolve requester %s: %w", ev.UserEmail, err)
	}
	friend, ferr := s.gateway.UserByEmail(ctx, ev.FriendEmail)
	if ferr != nil && !errors.Is(ferr, store.ErrNotFound) {
		return fmt.Errorf("resolve friend %s: %w", ev.FriendEmail, ferr)
	}
	if user == nil || friend == nil {
		return ch.Deliver(FriendNotFound{Type: "friend_not_found", FriendEmail: ev.FriendEmail})
	}

	userID := user.ID.Hex()
	friendID := friend.ID.Hex()

	if user.HasFriend(friendID) {
		return ch.Deliver(FriendExisted{Type: "friend_existed", FriendID: friendID})
	}

	if roomID, ok := friend.FriendRoomWith(userID); ok {
		return s.completeLink(ctx, ch, user, friend, ev.FriendEmail, roomID)
	}

	return s.createLink(ctx, ch, user, friend, ev)
}

// completeLink heals an asymmetric state where the friend already links to
// the requester but the requester's own link was never recorded. The
// existing shared room is reused.
func (s *FriendService) completeLink(ctx context.Context, ch Channel, user, friend *store.User, friendEmail, roomID string) error {
	friendID := friend.ID.Hex()
	link := store.FriendRef{
		FriendID:     friendID,
		FriendName:   friend.Username,
		FriendRoomID: roomID,
		FriendEmail:  friendEmail,
	}
	roomRef := store.RoomRef{RoomID: roomID, RoomName: friend.Username, RoomType: store.RoomTypeFriend}
	if err := s.gateway.AddFriendship(ctx, user.ID.Hex(), link, roomRef); err != nil {
		return fmt.Errorf("complete friend link to %s: %w", friendEmail, err)
	}

	return ch.Deliver(FriendAdded{
		Type:         "friend_added",
		FriendID:     friendID,
		FriendEmail:  friendEmail,
		FriendName:   friend.Username,
		FriendRoomID: roomID,
	})
}

// createLink creates the shared friend room and records reciprocal links on
// both user documents, all referencing the same room id.
func (s *FriendService) createLink(ctx context.Context, ch Channel, user, friend *store.User, ev AddFriend) error {
	userID := user.ID.Hex()
	friendID := friend.ID.Hex()

	room := &store.Room{
		Name:      user.Username + " and " + friend.Username + " room",
		CreatedBy: user.ID,
		RoomType:  store.RoomTypeFriend,
		Members: []store.Member{
			{ID: userID, Name: user.Username},
			{ID: friendID, Name: friend.Username},
		},
		Messages: []store.Message{},
	}
	roomID, err := s.gateway.InsertRoom(ctx, room)
	if err != nil {
		return fmt.Errorf("insert friend room: %w", err)
	}

	err = s.gateway.AddFriendship(ctx, friendID,
		store.FriendRef{
			FriendID:     userID,
			FriendName:   user.Username,
			FriendRoomID: roomID,
			FriendEmail:  ev.UserEmail,
		},
		store.RoomRef{RoomID: roomID, RoomName: user.Username, RoomType: store.RoomTypeFriend},
	)
	if err != nil {
		return fmt.Errorf("record friend link on %s: %w", ev.FriendEmail, err)
	}

	err = s.gateway.AddFriendship(ctx, userID,
		store.FriendRef{
			FriendID:     friendID,
			FriendName:   friend.Username,
			FriendRoomID: roomID,
			FriendEmail:  ev.FriendEmail,
		},
		store.RoomRef{RoomID: roomID, RoomName: friend.Username, RoomType: store.RoomTypeFriend},
	)
	if err != nil {
		return fmt.Errorf("record friend link on %s: %w", ev.UserEmail, err)
	}

	if friendCh, ok := s.registry.Lookup(ev.FriendEmail); ok {
		if err := friendCh.Deliver(FriendAdded{
			Type:         "friend_added",
			FriendID:     userID,
			FriendEmail:  ev.UserEmail,
			FriendName:   user.Username,
			FriendRoomID: roomID,
		}); err != nil {
			log.Printf("Dropping friend_added notification to %s: %v", ev.FriendEmail, err)
		}
	}

	return ch.Deliver(FriendAdded{
		Type:         "friend_added",
		FriendID:     friendID,
		FriendEmail:  ev.FriendEmail,
		FriendName:   friend.Username,
		FriendRoomID: roomID,
	})
}

// RemoveFriend detaches the friend link and the matching room entry from the
// requesting user's document only; the reciprocal link and the shared room
// document are left in place. The whole one-sided behavior lives behind
// Gateway.DetachFriend so a symmetric variant can be swapped in later.
func (s *FriendService) RemoveFriend(ctx context.Context, ch Channel, ev RemoveFriend) error {
	user, err := s.gateway.UserByEmail(ctx, ev.UserEmail)
	if err != nil {
		return fmt.Errorf("resolve requester %s: %w", ev.UserEmail, err)
	}

	if err := s.gateway.DetachFriend(ctx, user.ID.Hex(), ev.FriendID, ev.FriendRoomID); err != nil {
		return fmt.Errorf("detach friend %s: %w", ev.FriendID, err)
	}

	return ch.Deliver(FriendRemoved{
		Type:         "friend_removed",
		FriendID:     ev.FriendID,
		FriendRoomID: ev.FriendRoomID,
	})
}
