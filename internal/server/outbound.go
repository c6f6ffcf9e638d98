// Package server declares the outbound wire events pushed back to channels.
// Every outbound frame carries a "type" discriminator alongside its payload.
package server

import "github.com/roomtalk/roomtalk/internal/store"

// MessagePush fans a persisted chat message out to a room.
type MessagePush struct {
	Type    string `json:"type"`
	Author  string `json:"author"`
	Content string `json:"content"`
	Time    string `json:"time"`
}

// RoomCreated confirms room creation to the creating channel only.
type RoomCreated struct {
	Type     string `json:"type"`
	RoomName string `json:"room_name"`
	RoomID   string `json:"room_id"`
	RoomType string `json:"room_type"`
	Message  string `json:"message"`
}

// InvitedToRoom notifies a connected invitee about a room invitation.
type InvitedToRoom struct {
	Type       string `json:"type"`
	FriendID   string `json:"friend_id"`
	FriendName string `json:"friend_name"`
	RoomID     string `json:"room_id"`
	RoomName   string `json:"room_name"`
	RoomType   string `json:"room_type"`
}

// History carries a room's full message and member lists, unpaginated.
type History struct {
	Type     string          `json:"type"`
	Messages []store.Message `json:"messages"`
	Members  []store.Member  `json:"members"`
}

// ListUpdate carries a user's current room and friend lists.
type ListUpdate struct {
	Type        string            `json:"type"`
	ChatLists   []store.RoomRef   `json:"chatLists"`
	FriendLists []store.FriendRef `json:"friendLists"`
}

// FriendExisted tells the requester the friend link already exists.
type FriendExisted struct {
	Type     string `json:"type"`
	FriendID string `json:"friend_id"`
}

// FriendAdded confirms a new or completed friend link. Both sides of a pair
// receive the same friend_room_id.
type FriendAdded struct {
	Type         string `json:"type"`
	FriendID     string `json:"friend_id"`
	FriendEmail  string `json:"friend_email"`
	FriendName   string `json:"friend_name"`
	FriendRoomID string `json:"friend_room_id"`
}

// FriendNotFound tells the requester the friend email resolved to no user.
type FriendNotFound struct {
	Type        string `json:"type"`
	FriendEmail string `json:"friend_email"`
}

// FriendRemoved confirms the one-sided detach to the requester.
type FriendRemoved struct {
	Type         string `json:"type"`
	FriendID     string `json:"friend_id"`
	FriendRoomID string `json:"friend_room_id"`
}
