// Package server routes decoded inbound events to the matching service
// handler.
package server

import (
	"context"
	"fmt"
)

// Router dispatches each decoded event to exactly one handler. The event
// set is closed at the decode boundary, so every arm receives a statically
// shaped payload.
type Router struct {
	rooms   *RoomService
	friends *FriendService
}

// NewRouter creates a Router over the two services.
func NewRouter(rooms *RoomService, friends *FriendService) *Router {
	return &Router{rooms: rooms, friends: friends}
}

// Dispatch hands the event to its handler. An error terminates processing
// of this single event only; the session stays open.
func (r *Router) Dispatch(ctx context.Context, ch Channel, roomID string, ev Event) error {
	switch ev := ev.(type) {
	case ChatMessage:
		return r.rooms.SendMessage(ctx, roomID, ev)
	case CreateRoom:
		return r.rooms.CreateRoom(ctx, ch, ev)
	case InviteToRoom:
		return r.rooms.InviteToRoom(ctx, ev)
	case GetHistory:
		return r.rooms.History(ctx, ch, roomID)
	case GetLists:
		return r.rooms.Lists(ctx, ch, ev)
	case AddFriend:
		return r.friends.AddFriend(ctx, ch, ev)
	case RemoveFriend:
		return r.friends.RemoveFriend(ctx, ch, ev)
	default:
		return fmt.Errorf("no handler for event %T", ev)
	}
}
