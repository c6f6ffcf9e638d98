// Package store persists users, rooms, and messages to MongoDB and exposes
// the document operations the chat services depend on.
package store

import "go.mongodb.org/mongo-driver/bson/primitive"

// Room kinds. A "friend" room is the implicit 1:1 room backing a friend link.
const (
	RoomTypeGroup  = "group"
	RoomTypeFriend = "friend"
)

// Member is one entry in a room document's member list. The id is kept
// string-encoded so member descriptors round-trip over the wire unchanged.
type Member struct {
	ID   string `bson:"_id" json:"_id"`
	Name string `bson:"member_name" json:"member_name"`
}

// Message is one entry in a room document's append-only message list.
type Message struct {
	Author  string `bson:"author" json:"author"`
	Content string `bson:"content" json:"content"`
	Time    string `bson:"time" json:"time"`
}

// Room is the persisted room document. The document outlives the in-memory
// membership entry for the same room id.
type Room struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Name      string             `bson:"name" json:"name"`
	CreatedBy primitive.ObjectID `bson:"created_by" json:"-"`
	Members   []Member           `bson:"members" json:"members"`
	RoomType  string             `bson:"room_type" json:"room_type"`
	Messages  []Message          `bson:"messages" json:"messages"`
}

// RoomRef is a room-membership entry on a user document.
type RoomRef struct {
	RoomID   string `bson:"room_id" json:"room_id"`
	RoomName string `bson:"room_name" json:"room_name"`
	RoomType string `bson:"room_type" json:"room_type"`
}

// FriendRef is a friend-link entry on a user document. Every link from A to
// B is mirrored by a link from B to A carrying the same FriendRoomID.
type FriendRef struct {
	FriendID     string `bson:"friend_id" json:"friend_id"`
	FriendName   string `bson:"friend_name" json:"friend_name"`
	FriendRoomID string `bson:"friend_room_id" json:"friend_room_id"`
	FriendEmail  string `bson:"friend_email" json:"friend_email"`
}

// User is the persisted user document, looked up by email.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Email    string             `bson:"email" json:"email"`
	Username string             `bson:"username" json:"username"`
	Rooms    []RoomRef          `bson:"rooms" json:"rooms"`
	Friends  []FriendRef        `bson:"friends" json:"friends"`
}

// HasFriend reports whether the user already links to the given friend id.
func (u *User) HasFriend(friendID string) bool {
	for _, f := range u.Friends {
		if f.FriendID == friendID {
			return true
		}
	}
	return false
}

// FriendRoomWith returns the shared room id recorded on this user's link to
// the given friend id, if such a link exists.
func (u *User) FriendRoomWith(friendID string) (string, bool) {
	for _, f := range u.Friends {
		if f.FriendID == friendID {
			return f.FriendRoomID, true
		}
	}
	return "", false
}
