package server

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roomtalk/roomtalk/internal/store"
)

// fakeGateway is a map-backed Gateway with the same set/push semantics as
// the MongoDB implementation.
type fakeGateway struct {
	mu    sync.Mutex
	users map[string]*store.User // by email
	rooms map[string]*store.Room // by hex id

	appendErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		users: make(map[string]*store.User),
		rooms: make(map[string]*store.Room),
	}
}

func (g *fakeGateway) addUser(email, username string) *store.User {
	g.mu.Lock()
	defer g.mu.Unlock()

	user := &store.User{
		ID:       primitive.NewObjectID(),
		Email:    email,
		Username: username,
	}
	g.users[email] = user
	return user
}

func (g *fakeGateway) addRoom(name, roomType string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	room := &store.Room{ID: primitive.NewObjectID(), Name: name, RoomType: roomType}
	g.rooms[room.ID.Hex()] = room
	return room.ID.Hex()
}

func (g *fakeGateway) userByID(id string) (*store.User, bool) {
	for _, u := range g.users {
		if u.ID.Hex() == id {
			return u, true
		}
	}
	return nil, false
}

func copyUser(u *store.User) *store.User {
	cp := *u
	cp.Rooms = append([]store.RoomRef(nil), u.Rooms...)
	cp.Friends = append([]store.FriendRef(nil), u.Friends...)
	return &cp
}

func copyRoom(r *store.Room) *store.Room {
	cp := *r
	cp.Members = append([]store.Member(nil), r.Members...)
	cp.Messages = append([]store.Message(nil), r.Messages...)
	return &cp
}

func (g *fakeGateway) UserByEmail(_ context.Context, email string) (*store.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	user, ok := g.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(user), nil
}

func (g *fakeGateway) RoomByID(_ context.Context, roomID string) (*store.Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyRoom(room), nil
}

func (g *fakeGateway) InsertRoom(_ context.Context, room *store.Room) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	stored := copyRoom(room)
	if stored.ID.IsZero() {
		stored.ID = primitive.NewObjectID()
	}
	g.rooms[stored.ID.Hex()] = stored
	return stored.ID.Hex(), nil
}

func (g *fakeGateway) AppendMessage(_ context.Context, roomID string, msg store.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.appendErr != nil {
		return g.appendErr
	}
	room, ok := g.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	room.Messages = append(room.Messages, msg)
	return nil
}

func (g *fakeGateway) AddRoomToUser(_ context.Context, userID string, ref store.RoomRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	user, ok := g.userByID(userID)
	if !ok {
		return store.ErrNotFound
	}
	user.Rooms = append(user.Rooms, ref)
	return nil
}

func (g *fakeGateway) AddRoomInvite(_ context.Context, inviteeID string, ref store.RoomRef, roomID string, member store.Member) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	user, ok := g.userByID(inviteeID)
	if !ok {
		return store.ErrNotFound
	}
	room, ok := g.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}

	found := false
	for _, existing := range user.Rooms {
		if existing == ref {
			found = true
			break
		}
	}
	if !found {
		user.Rooms = append(user.Rooms, ref)
	}

	found = false
	for _, existing := range room.Members {
		if existing == member {
			found = true
			break
		}
	}
	if !found {
		room.Members = append(room.Members, member)
	}
	return nil
}

func (g *fakeGateway) AddFriendship(_ context.Context, userID string, friend store.FriendRef, room store.RoomRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	user, ok := g.userByID(userID)
	if !ok {
		return store.ErrNotFound
	}

	found := false
	for _, existing := range user.Friends {
		if existing == friend {
			found = true
			break
		}
	}
	if !found {
		user.Friends = append(user.Friends, friend)
	}

	found = false
	for _, existing := range user.Rooms {
		if existing == room {
			found = true
			break
		}
	}
	if !found {
		user.Rooms = append(user.Rooms, room)
	}
	return nil
}

func (g *fakeGateway) DetachFriend(_ context.Context, userID, friendID, friendRoomID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	user, ok := g.userByID(userID)
	if !ok {
		return store.ErrNotFound
	}

	friends := user.Friends[:0]
	for _, f := range user.Friends {
		if f.FriendID != friendID {
			friends = append(friends, f)
		}
	}
	user.Friends = friends

	rooms := user.Rooms[:0]
	for _, r := range user.Rooms {
		if r.RoomID != friendRoomID {
			rooms = append(rooms, r)
		}
	}
	user.Rooms = rooms
	return nil
}

// fakeChannel records delivered events.
type fakeChannel struct {
	mu         sync.Mutex
	events     []any
	deliverErr error
	closed     bool
}

func (c *fakeChannel) Deliver(event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deliverErr != nil {
		return c.deliverErr
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) delivered() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.events...)
}

var _ Gateway = (*fakeGateway)(nil)
var _ Channel = (*fakeChannel)(nil)
