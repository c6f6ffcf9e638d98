// Package server implements the room operations: sending messages, creating
// rooms, inviting members, and serving history and list queries.
package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/roomtalk/roomtalk/internal/store"
)

// Message timestamps use a fixed UTC+8 wall clock, matching the stored
// document format.
var messageZone = time.FixedZone("UTC+8", 8*60*60)

const messageTimeLayout = "2006/01/02 15:04:05"

// RoomService mutates room documents and fans results out to the channels
// currently bound to a room.
type RoomService struct {
	gateway  Gateway
	registry *Registry
	now      func() time.Time

	// Per-room append order: holding the room's lock across the persistence
	// write and the broadcast gives every bound channel the same total order
	// of messages per room.
	ordMu    sync.Mutex
	ordering map[string]*sync.Mutex
}

// NewRoomService creates a RoomService on the given gateway and registry.
func NewRoomService(gateway Gateway, registry *Registry) *RoomService {
	return &RoomService{
		gateway:  gateway,
		registry: registry,
		now:      time.Now,
		ordering: make(map[string]*sync.Mutex),
	}
}

func (s *RoomService) roomLock(roomID string) *sync.Mutex {
	s.ordMu.Lock()
	defer s.ordMu.Unlock()

	mu, ok := s.ordering[roomID]
	if !ok {
		mu = &sync.Mutex{}
		s.ordering[roomID] = mu
	}
	return mu
}

// SendMessage timestamps the message, appends it to the room document, and
// broadcasts it to every channel bound to the room, sender included. If the
// append fails no broadcast happens. Per-channel delivery failures are
// logged and do not abort delivery to the remaining channels.
func (s *RoomService) SendMessage(ctx context.Context, roomID string, ev ChatMessage) error {
	mu := s.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	msg := store.Message{
		Author:  ev.Author,
		Content: ev.Content,
		Time:    s.now().In(messageZone).Format(messageTimeLayout),
	}

	if err := s.gateway.AppendMessage(ctx, roomID, msg); err != nil {
		return fmt.Errorf("persist message to room %s: %w", roomID, err)
	}

	push := MessagePush{
		Type:    "message",
		Author:  msg.Author,
		Content: msg.Content,
		Time:    msg.Time,
	}
	for _, ch := range s.registry.RoomMembers(roomID) {
		if err := ch.Deliver(push); err != nil {
			log.Printf("Dropping message delivery to one member of room %s: %v", roomID, err)
		}
	}
	return nil
}

// CreateRoom inserts a group room with the creator as sole member, records
// the membership on the creator's user document, and replies to the
// creating channel only. Joining the new room is a separate connect.
func (s *RoomService) CreateRoom(ctx context.Context, ch Channel, ev CreateRoom) error {
	creator, err := s.gateway.UserByEmail(ctx, ev.CreatorID)
	if err != nil {
		return fmt.Errorf("resolve room creator %s: %w", ev.CreatorID, err)
	}

	room := &store.Room{
		Name:      ev.RoomName,
		CreatedBy: creator.ID,
		Members: []store.Member{
			{ID: creator.ID.Hex(), Name: creator.Username},
		},
		RoomType: store.RoomTypeGroup,
		Messages: []store.Message{},
	}
	roomID, err := s.gateway.InsertRoom(ctx, room)
	if err != nil {
		return fmt.Errorf("insert room %q: %w", ev.RoomName, err)
	}

	ref := store.RoomRef{RoomID: roomID, RoomName: ev.RoomName, RoomType: store.RoomTypeGroup}
	if err := s.gateway.AddRoomToUser(ctx, creator.ID.Hex(), ref); err != nil {
		return fmt.Errorf("record room %s on creator: %w", roomID, err)
	}

	return ch.Deliver(RoomCreated{
		Type:     "room_created",
		RoomName: ev.RoomName,
		RoomID:   roomID,
		RoomType: store.RoomTypeGroup,
		Message:  "room created",
	})
}

// InviteToRoom records the invitation on the invitee's user document and the
// room's member list with set semantics, then notifies the invitee's channel
// if one is currently registered. Persistence happens whether or not the
// invitee is online.
func (s *RoomService) InviteToRoom(ctx context.Context, ev InviteToRoom) error {
	ref := store.RoomRef{RoomID: ev.RoomID, RoomName: ev.RoomName, RoomType: store.RoomTypeGroup}
	member := store.Member{ID: ev.FriendID, Name: ev.FriendName}
	if err := s.gateway.AddRoomInvite(ctx, ev.FriendID, ref, ev.RoomID, member); err != nil {
		return fmt.Errorf("record invite to room %s: %w", ev.RoomID, err)
	}

	ch, ok := s.registry.Lookup(ev.FriendEmail)
	if !ok {
		return nil
	}
	if err := ch.Deliver(InvitedToRoom{
		Type:       "invited_to_room",
		FriendID:   ev.FriendID,
		FriendName: ev.FriendName,
		RoomID:     ev.RoomID,
		RoomName:   ev.RoomName,
		RoomType:   store.RoomTypeGroup,
	}); err != nil {
		log.Printf("Dropping invite notification to %s: %v", ev.FriendEmail, err)
	}
	return nil
}

// History replies to the requesting channel with the room's full message and
// member lists, unfiltered and unpaginated.
func (s *RoomService) History(ctx context.Context, ch Channel, roomID string) error {
	room, err := s.gateway.RoomByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("fetch history for room %s: %w", roomID, err)
	}

	messages := room.Messages
	if messages == nil {
		messages = []store.Message{}
	}
	members := room.Members
	if members == nil {
		members = []store.Member{}
	}
	return ch.Deliver(History{Type: "history", Messages: messages, Members: members})
}

// Lists replies to the requesting channel with the user's current room and
// friend lists.
func (s *RoomService) Lists(ctx context.Context, ch Channel, ev GetLists) error {
	user, err := s.gateway.UserByEmail(ctx, ev.UserEmail)
	if err != nil {
		return fmt.Errorf("fetch lists for %s: %w", ev.UserEmail, err)
	}

	rooms := user.Rooms
	if rooms == nil {
		rooms = []store.RoomRef{}
	}
	friends := user.Friends
	if friends == nil {
		friends = []store.FriendRef{}
	}
	return ch.Deliver(ListUpdate{Type: "list_update", ChatLists: rooms, FriendLists: friends})
}
