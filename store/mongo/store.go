// Package mongo provides a MongoDB implementation of store.Store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/privmsg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	opts       *options
	connected  int32
	logger     *slog.Logger
}

// New creates a new MongoDB store with the provided client.
// Call Connect() to initialize the collection and indexes.
func New(client *mongo.Client, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

// Connect initializes the database, collection, and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&s.connected) == 1 {
		return store.ErrAlreadyConnected
	}

	if s.client == nil {
		return fmt.Errorf("mongo: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}

	s.db = s.client.Database(s.opts.database)
	s.collection = s.db.Collection(s.opts.collection)

	if err := s.ensureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	atomic.StoreInt32(&s.connected, 1)
	s.logger.Info("connected to MongoDB", "database", s.opts.database, "collection", s.opts.collection)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the MongoDB client.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureIndexes creates required indexes.
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// Public ID lookups must be unique
		{
			Keys:    bson.D{bson.E{Key: "public_id", Value: 1}},
			Options: mongoopts.Index().SetUnique(true),
		},
		// Listing indexes
		{Keys: bson.D{
			bson.E{Key: "author_id", Value: 1},
			bson.E{Key: "deleted_by_author", Value: 1},
			bson.E{Key: "created_at", Value: -1},
		}},
		{Keys: bson.D{
			bson.E{Key: "recipient_id", Value: 1},
			bson.E{Key: "deleted_by_recipient", Value: 1},
			bson.E{Key: "created_at", Value: -1},
		}},
		// Unread recount index
		{Keys: bson.D{
			bson.E{Key: "recipient_id", Value: 1},
			bson.E{Key: "is_read", Value: 1},
			bson.E{Key: "deleted_by_recipient", Value: 1},
		}},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// Create persists a new message.
func (s *Store) Create(ctx context.Context, data store.MessageData) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if data.PublicID == "" {
		return nil, store.ErrEmptyPublicID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	now := time.Now().UTC()
	doc := messageDoc{
		ID:          uuid.New().String(),
		PublicID:    data.PublicID,
		AuthorID:    data.AuthorID,
		RecipientID: data.RecipientID,
		Subject:     data.Subject,
		Body:        data.Body,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return docToMessage(&doc), nil
}

// Get retrieves a message by internal ID.
func (s *Store) Get(ctx context.Context, id string) (store.Message, error) {
	return s.findOne(ctx, bson.M{"_id": id}, id)
}

// GetByPublicID retrieves a message by public ID.
func (s *Store) GetByPublicID(ctx context.Context, publicID string) (store.Message, error) {
	return s.findOne(ctx, bson.M{"public_id": publicID}, publicID)
}

func (s *Store) findOne(ctx context.Context, filter bson.M, id string) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc messageDoc
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return docToMessage(&doc), nil
}

// SetRead updates the read flag and returns the updated message.
func (s *Store) SetRead(ctx context.Context, id string, read bool) (store.Message, error) {
	set := bson.M{"is_read": read, "updated_at": time.Now().UTC()}
	update := bson.M{"$set": set}
	if read {
		set["read_at"] = time.Now().UTC()
	} else {
		update["$unset"] = bson.M{"read_at": ""}
	}
	return s.findOneAndUpdate(ctx, id, update)
}

// SetDeleted updates one party's delete flag and returns the updated message.
func (s *Store) SetDeleted(ctx context.Context, id string, byAuthor, deleted bool) (store.Message, error) {
	field := "deleted_by_recipient"
	if byAuthor {
		field = "deleted_by_author"
	}
	return s.findOneAndUpdate(ctx, id, bson.M{
		"$set": bson.M{field: deleted, "updated_at": time.Now().UTC()},
	})
}

// findOneAndUpdate applies the update atomically and returns the post-update document.
func (s *Store) findOneAndUpdate(ctx context.Context, id string, update bson.M) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	opts := mongoopts.FindOneAndUpdate().SetReturnDocument(mongoopts.After)
	var doc messageDoc
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return docToMessage(&doc), nil
}

// HardDelete permanently removes a message.
func (s *Store) HardDelete(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("hard delete: %w", err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CountUnread returns the unread recount for a recipient.
func (s *Store) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	count, err := s.collection.CountDocuments(ctx, bson.M{
		"recipient_id":         recipientID,
		"is_read":              false,
		"deleted_by_recipient": false,
	})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// ListInbox returns messages received by the account.
func (s *Store) ListInbox(ctx context.Context, recipientID string, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(ctx, bson.M{
		"recipient_id":         recipientID,
		"deleted_by_recipient": false,
	}, opts)
}

// ListSent returns messages authored by the account.
func (s *Store) ListSent(ctx context.Context, authorID string, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(ctx, bson.M{
		"author_id":         authorID,
		"deleted_by_author": false,
	}, opts)
}

func (s *Store) list(ctx context.Context, filter bson.M, opts store.ListOptions) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	order := -1
	if opts.SortOrder == store.SortAsc {
		order = 1
	}
	findOpts := mongoopts.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: order}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit + 1))

	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []store.Message
	for cursor.Next(ctx) {
		var doc messageDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, docToMessage(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	hasMore := len(messages) > opts.Limit
	if hasMore {
		messages = messages[:opts.Limit]
	}

	return &store.MessageList{
		Messages: messages,
		Total:    total,
		HasMore:  hasMore,
	}, nil
}
