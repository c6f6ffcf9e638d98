// Package store implements the persistence gateway on the official MongoDB
// driver. All identifiers cross this boundary string-encoded; ObjectID
// conversion happens here and nowhere else.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	// ErrUnavailable is returned by every operation when the gateway never
	// came up at startup.
	ErrUnavailable = errors.New("store: gateway unavailable")

	// ErrNotFound is returned when a filter matches no document.
	ErrNotFound = errors.New("store: document not found")
)

const connectTimeout = 10 * time.Second

// Store is the MongoDB-backed persistence gateway for users and rooms.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	rooms  *mongo.Collection
}

// Connect dials MongoDB and verifies the connection with a ping. On failure
// it logs the cause and returns a degraded Store whose operations all fail
// with ErrUnavailable, alongside the error; the caller decides whether to
// keep serving in an unready state.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))

	client, err := mongo.Connect(ctx, opts)
	if err == nil {
		err = client.Ping(ctx, readpref.Primary())
	}
	if err != nil {
		log.Printf("MongoDB connection failed: %v", err)
		return &Store{}, fmt.Errorf("store: connect: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client: client,
		users:  db.Collection("users"),
		rooms:  db.Collection("rooms"),
	}, nil
}

// Ping reports whether the gateway is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return ErrUnavailable
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) available() error {
	if s.client == nil {
		return ErrUnavailable
	}
	return nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("store: invalid id %q: %w", id, err)
	}
	return oid, nil
}

// UserByEmail fetches the user document keyed by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	var user User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user %q: %w", email, err)
	}
	return &user, nil
}

// RoomByID fetches a room document by its string-encoded id.
func (s *Store) RoomByID(ctx context.Context, roomID string) (*Room, error) {
	if err := s.available(); err != nil {
		return nil, err
	}

	oid, err := objectID(roomID)
	if err != nil {
		return nil, err
	}

	var room Room
	err = s.rooms.FindOne(ctx, bson.M{"_id": oid}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find room %q: %w", roomID, err)
	}
	return &room, nil
}

// InsertRoom inserts a new room document and returns its generated id.
func (s *Store) InsertRoom(ctx context.Context, room *Room) (string, error) {
	if err := s.available(); err != nil {
		return "", err
	}

	res, err := s.rooms.InsertOne(ctx, room)
	if err != nil {
		return "", fmt.Errorf("store: insert room: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("store: insert room: unexpected id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// AppendMessage pushes a message onto the room's append-only message list.
func (s *Store) AppendMessage(ctx context.Context, roomID string, msg Message) error {
	if err := s.available(); err != nil {
		return err
	}

	oid, err := objectID(roomID)
	if err != nil {
		return err
	}

	_, err = s.rooms.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$push": bson.M{"messages": msg}},
	)
	if err != nil {
		return fmt.Errorf("store: append message to room %q: %w", roomID, err)
	}
	return nil
}

// AddRoomToUser pushes a room-membership entry onto the user's room list.
func (s *Store) AddRoomToUser(ctx context.Context, userID string, ref RoomRef) error {
	if err := s.available(); err != nil {
		return err
	}

	oid, err := objectID(userID)
	if err != nil {
		return err
	}

	_, err = s.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$push": bson.M{"rooms": ref}},
	)
	if err != nil {
		return fmt.Errorf("store: add room to user %q: %w", userID, err)
	}
	return nil
}

// AddRoomInvite records a room invitation on both sides: the invitee's room
// list and the room's member list. $addToSet keeps repeated invites from
// duplicating either entry.
func (s *Store) AddRoomInvite(ctx context.Context, inviteeID string, ref RoomRef, roomID string, member Member) error {
	if err := s.available(); err != nil {
		return err
	}

	userOID, err := objectID(inviteeID)
	if err != nil {
		return err
	}
	roomOID, err := objectID(roomID)
	if err != nil {
		return err
	}

	userModels := []mongo.WriteModel{
		mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": userOID}).
			SetUpdate(bson.M{"$addToSet": bson.M{"rooms": ref}}),
	}
	if _, err := s.users.BulkWrite(ctx, userModels); err != nil {
		return fmt.Errorf("store: invite user %q: %w", inviteeID, err)
	}

	roomModels := []mongo.WriteModel{
		mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": roomOID}).
			SetUpdate(bson.M{"$addToSet": bson.M{"members": member}}),
	}
	if _, err := s.rooms.BulkWrite(ctx, roomModels); err != nil {
		return fmt.Errorf("store: add member to room %q: %w", roomID, err)
	}
	return nil
}

// AddFriendship records a friend link and the backing room membership on one
// user's document in a single atomic update. $addToSet keeps the operation
// idempotent.
func (s *Store) AddFriendship(ctx context.Context, userID string, friend FriendRef, room RoomRef) error {
	if err := s.available(); err != nil {
		return err
	}

	oid, err := objectID(userID)
	if err != nil {
		return err
	}

	_, err = s.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$addToSet": bson.M{
			"friends": friend,
			"rooms":   room,
		}},
	)
	if err != nil {
		return fmt.Errorf("store: add friendship for user %q: %w", userID, err)
	}
	return nil
}

// DetachFriend pulls the friend link and the matching room entry from the
// requesting user's document. The reciprocal side and the room document are
// deliberately untouched; swapping in a symmetric removal means extending
// this method only.
func (s *Store) DetachFriend(ctx context.Context, userID, friendID, friendRoomID string) error {
	if err := s.available(); err != nil {
		return err
	}

	oid, err := objectID(userID)
	if err != nil {
		return err
	}

	models := []mongo.WriteModel{
		mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": oid}).
			SetUpdate(bson.M{"$pull": bson.M{"friends": bson.M{"friend_id": friendID}}}),
		mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": oid}).
			SetUpdate(bson.M{"$pull": bson.M{"rooms": bson.M{"room_id": friendRoomID}}}),
	}
	if _, err := s.users.BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("store: detach friend %q from user %q: %w", friendID, userID, err)
	}
	return nil
}
