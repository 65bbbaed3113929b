// Package audit writes a best-effort trail of inbound webhooks and gateway
// call outcomes to MongoDB. A nil *Trail is a no-op, so callers never guard.
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/config"
)

type Trail struct {
	client     *mongo.Client
	database   *mongo.Database
	collection string
	logger     *zap.Logger
}

// Entry is one audit document.
type Entry struct {
	ID        string    `bson:"_id,omitempty"`
	Service   string    `bson:"service"`
	Action    string    `bson:"action"`
	EntityID  string    `bson:"entity_id"`
	Data      bson.M    `bson:"data"`
	CreatedAt time.Time `bson:"created_at"`
}

func NewTrail(cfg *config.MongoDBConfig, logger *zap.Logger) (*Trail, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &Trail{
		client:     client,
		database:   client.Database(cfg.Database),
		collection: cfg.Collection,
		logger:     logger,
	}, nil
}

func (t *Trail) Ping(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.client.Ping(ctx, nil)
}

// Record inserts one entry. Failures are logged and swallowed; the funnel
// never stalls on the audit trail.
func (t *Trail) Record(ctx context.Context, service, action, entityID string, data map[string]interface{}) {
	if t == nil {
		return
	}
	entry := Entry{
		Service:   service,
		Action:    action,
		EntityID:  entityID,
		Data:      bson.M(data),
		CreatedAt: time.Now(),
	}
	if _, err := t.database.Collection(t.collection).InsertOne(ctx, entry); err != nil {
		t.logger.Warn("audit entry dropped",
			zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}

// Recent returns the latest entries for an entity, newest first.
func (t *Trail) Recent(ctx context.Context, entityID string, limit int64) ([]*Entry, error) {
	if t == nil {
		return nil, nil
	}
	filter := bson.M{"entity_id": entityID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := t.database.Collection(t.collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*Entry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *Trail) Close(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.client.Disconnect(ctx)
}
