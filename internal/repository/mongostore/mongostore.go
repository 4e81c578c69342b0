// Package mongostore keeps direct messages in a MongoDB collection. It only
// implements repository.MessageRepository; combine it with another store via
// repository.WithMessages.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "direct_messages"
	countersCollection = "counters"
	messageSequence    = "direct_messages"
)

// Messages is a MessageRepository backed by MongoDB. Ids come from a counter
// document so they stay strictly increasing across processes.
type Messages struct {
	messages *mongo.Collection
	counters *mongo.Collection
}

var _ repository.MessageRepository = (*Messages)(nil)

// New returns a message repository on db.
func New(db *mongo.Database) *Messages {
	return &Messages{
		messages: db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
	}
}

// EnsureIndexes configures the indexes used by conversation queries.
// Called on startup after Mongo has connected.
func (m *Messages) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "sender_id", Value: 1},
				{Key: "receiver_id", Value: 1},
				{Key: "_id", Value: 1},
			},
			Options: options.Index().SetName("idx_sender_receiver"),
		},
		{
			Keys: bson.D{
				{Key: "receiver_id", Value: 1},
				{Key: "read", Value: 1},
			},
			Options: options.Index().SetName("idx_receiver_read"),
		},
	}

	for _, idx := range indexes {
		if _, err := m.messages.Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (m *Messages) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messageSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	return counter.Seq, nil
}

func (m *Messages) InsertMessage(ctx context.Context, msg *models.Message) error {
	id, err := m.nextID(ctx)
	if err != nil {
		return err
	}
	msg.ID = id
	msg.CreatedAt = msg.CreatedAt.UTC()

	if _, err := m.messages.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (m *Messages) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	var msg models.Message
	err := m.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}

func (m *Messages) MarkMessageRead(ctx context.Context, id int64) error {
	res, err := m.messages.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (m *Messages) MessagesBetween(ctx context.Context, a, b string) ([]models.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
	return m.find(ctx, filter)
}

func (m *Messages) MessagesFor(ctx context.Context, userID string) ([]models.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userID},
		bson.M{"receiver_id": userID},
	}}
	return m.find(ctx, filter)
}

func (m *Messages) find(ctx context.Context, filter bson.M) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cur, err := m.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	msgs := []models.Message{}
	for cur.Next(ctx) {
		var msg models.Message
		if err := cur.Decode(&msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		msgs = append(msgs, msg)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}
