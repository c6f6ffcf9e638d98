// Package server consumes persistence through the Gateway capability so the
// services stay independent of the concrete MongoDB wiring.
package server

import (
	"context"

	"github.com/roomtalk/roomtalk/internal/store"
)

// Gateway is the persistence capability the chat services depend on. All
// ids are string-encoded; the implementation owns native-id conversion.
// *store.Store satisfies it.
type Gateway interface {
	UserByEmail(ctx context.Context, email string) (*store.User, error)
	RoomByID(ctx context.Context, roomID string) (*store.Room, error)
	InsertRoom(ctx context.Context, room *store.Room) (string, error)
	AppendMessage(ctx context.Context, roomID string, msg store.Message) error
	AddRoomToUser(ctx context.Context, userID string, ref store.RoomRef) error
	AddRoomInvite(ctx context.Context, inviteeID string, ref store.RoomRef, roomID string, member store.Member) error
	AddFriendship(ctx context.Context, userID string, friend store.FriendRef, room store.RoomRef) error
	DetachFriend(ctx context.Context, userID, friendID, friendRoomID string) error
}
