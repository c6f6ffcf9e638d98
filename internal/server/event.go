// Package server defines the inbound protocol events and decodes raw frames
// into a closed set of typed payloads at the session boundary.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEventType marks a frame whose type tag matches no handler. Such
// frames are logged and dropped; the connection stays open and no reply is
// sent.
var ErrUnknownEventType = errors.New("unknown event type")

// Event is one decoded inbound protocol event. The set of implementations
// is closed: every frame becomes exactly one of the seven types below or an
// error.
type Event interface {
	event()
}

// ChatMessage appends a message to the session's room and fans it out.
type ChatMessage struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// CreateRoom creates a group room owned by the creator. CreatorID carries
// the creator's email, matching the wire protocol.
type CreateRoom struct {
	CreatorID string `json:"creator_id"`
	RoomName  string `json:"room_name"`
}

// InviteToRoom adds a user to an existing group room.
type InviteToRoom struct {
	FriendID    string `json:"friend_id"`
	FriendName  string `json:"friend_name"`
	FriendEmail string `json:"friend_email"`
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
}

// GetHistory requests the full message and member lists of the session's
// room. The room id comes from the connection context, not the frame.
type GetHistory struct{}

// GetLists requests the user's room and friend lists.
type GetLists struct {
	UserEmail string `json:"user_email"`
}

// AddFriend requests a bidirectional friend link backed by a 1:1 room.
type AddFriend struct {
	UserEmail   string `json:"user_email"`
	FriendEmail string `json:"friend_email"`
}

// RemoveFriend detaches the friend link from the requesting user only.
type RemoveFriend struct {
	UserEmail    string `json:"user_email"`
	FriendID     string `json:"friend_id"`
	FriendRoomID string `json:"friend_room_id"`
}

func (ChatMessage) event()  {}
func (CreateRoom) event()   {}
func (InviteToRoom) event() {}
func (GetHistory) event()   {}
func (GetLists) event()     {}
func (AddFriend) event()    {}
func (RemoveFriend) event() {}

func missingField(eventType, field string) error {
	return fmt.Errorf("%s event missing required field %q", eventType, field)
}

func requireFields(eventType string, fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return missingField(eventType, name)
		}
	}
	return nil
}

// DecodeEvent decodes one raw inbound frame into a typed Event. It checks
// field presence only; a frame with an unrecognized type tag yields
// ErrUnknownEventType.
func DecodeEvent(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed event frame: %w", err)
	}

	switch envelope.Type {
	case "message":
		var ev ChatMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields("message", map[string]string{
			"author":  ev.Author,
			"content": ev.Content,
		})

	case "create_room":
		var ev CreateRoom
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields("create_room", map[string]string{
			"creator_id": ev.CreatorID,
			"room_name":  ev.RoomName,
		})

	case "invite_to_room":
		var ev InviteToRoom
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields("invite_to_room", map[string]string{
			"friend_id":    ev.FriendID,
			"friend_name":  ev.FriendName,
			"friend_email": ev.FriendEmail,
			"room_id":      ev.RoomID,
			"room_name":    ev.RoomName,
		})

	case "get_history":
		return GetHistory{}, nil

	case "get_lists":
		var ev GetLists
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields("get_lists", map[string]string{
			"user_email": ev.UserEmail,
		})

	case "add_friend":
		var ev AddFriend
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields("add_friend", map[string]string{
			"user_email":   ev.UserEmail,
			"friend_email": ev.FriendEmail,
		})

	case "remove_friend":
		var ev RemoveFriend
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields("remove_friend", map[string]string{
			"user_email":     ev.UserEmail,
			"friend_id":      ev.FriendID,
			"friend_room_id": ev.FriendRoomID,
		})

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, envelope.Type)
	}
}

// eventIdentity returns the sender identity an event carries, if any.
// Identity-bearing events register the sender's channel before dispatch,
// so later friend notifications can find it.
func eventIdentity(ev Event) string {
	switch ev := ev.(type) {
	case GetLists:
		return ev.UserEmail
	case AddFriend:
		return ev.UserEmail
	case RemoveFriend:
		return ev.UserEmail
	default:
		return ""
	}
}
