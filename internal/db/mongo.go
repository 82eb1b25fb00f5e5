package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/models"
)

type Mongo struct {
	Client      *mongo.Client
	Database    *mongo.Database
	Transcripts *mongo.Collection
}

func NewMongo(ctx context.Context, cfg config.MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: uri is required")
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	db := client.Database(cfg.Database)
	store := &Mongo{
		Client:      client,
		Database:    db,
		Transcripts: db.Collection("transcripts"),
	}

	return store, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.Client.Disconnect(ctx)
}

func (m *Mongo) EnsureCollections(ctx context.Context) error {
	if m == nil || m.Database == nil {
		return fmt.Errorf("mongo: database not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := m.Transcripts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "call_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure transcript index: %w", err)
	}

	_, err = m.Transcripts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure transcript user index: %w", err)
	}

	return nil
}

// TranscriptTurn is one stored line of a call transcript.
type TranscriptTurn struct {
	Role    string    `bson:"role" json:"role"`
	Content string    `bson:"content" json:"content"`
	At      time.Time `bson:"at" json:"at"`
}

// Transcript is the full stored conversation of one call.
type Transcript struct {
	CallID    string           `bson:"call_id" json:"call_id"`
	UserID    string           `bson:"user_id" json:"user_id"`
	Turns     []TranscriptTurn `bson:"turns" json:"turns"`
	UpdatedAt time.Time        `bson:"updated_at" json:"updated_at"`
}

// NewTranscriptTurn stamps a conversation turn for storage.
func NewTranscriptTurn(turn models.Turn, at time.Time) TranscriptTurn {
	return TranscriptTurn{Role: string(turn.Role), Content: turn.Content, At: at.UTC()}
}

// AppendTranscript pushes turns onto the call's transcript document, creating
// it on first write. Turns keep arrival order.
func (m *Mongo) AppendTranscript(ctx context.Context, callID, userID string, turns []TranscriptTurn) error {
	if m == nil || m.Transcripts == nil {
		return fmt.Errorf("mongo: transcripts not initialised")
	}
	if len(turns) == 0 {
		return nil
	}

	filter := bson.M{"call_id": callID, "user_id": userID}
	update := bson.M{
		"$push":        bson.M{"turns": bson.M{"$each": turns}},
		"$set":         bson.M{"updated_at": time.Now().UTC()},
		"$setOnInsert": bson.M{"call_id": callID, "user_id": userID},
	}

	_, err := m.Transcripts.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: append transcript: %w", err)
	}

	return nil
}

// GetTranscript loads the transcript for a call, scoped to its owner.
func (m *Mongo) GetTranscript(ctx context.Context, callID, ownerID string) (Transcript, error) {
	if m == nil || m.Transcripts == nil {
		return Transcript{}, fmt.Errorf("mongo: transcripts not initialised")
	}

	var transcript Transcript
	filter := bson.M{"call_id": callID, "user_id": ownerID}
	if err := m.Transcripts.FindOne(ctx, filter).Decode(&transcript); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Transcript{}, ErrNotFound
		}
		return Transcript{}, fmt.Errorf("mongo: get transcript: %w", err)
	}

	return transcript, nil
}

func timeoutOrDefault(value time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return 10 * time.Second
}
