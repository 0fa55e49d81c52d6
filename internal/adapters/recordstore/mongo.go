package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/logger"
	"github.com/okian/highscore/pkg/metrics"
)

const (
	backendMongo        = "mongo"
	scoreCollectionName = "scores"
)

// MongoStore keeps submissions in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	opts   storeOptions
}

var _ Store = (*MongoStore)(nil)

// ConnectMongo dials uri and uses the scores collection of database.
func ConnectMongo(ctx context.Context, uri, database string, opts ...Option) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongo: %w", ErrStoreUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping mongo: %w", ErrStoreUnavailable, err)
	}

	s := NewMongoStore(client.Database(database).Collection(scoreCollectionName), opts...)
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		s.opts.logger.Warn(ctx, "failed to create score indexes", logger.Error(err))
	}
	return s, nil
}

// NewMongoStore wraps an existing collection.
func NewMongoStore(coll *mongo.Collection, opts ...Option) *MongoStore {
	s := &MongoStore{coll: coll, opts: defaultOptions()}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// EnsureIndexes creates the per-game and per-player lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "player_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

// Create implements Store.Create.
func (s *MongoStore) Create(ctx context.Context, n model.NewSubmission) (sub model.Submission, err error) {
	start := time.Now()
	defer func() {
		if !errors.Is(err, ErrInvalidSubmission) {
			metrics.RecordRecordStoreOp(backendMongo, "create", float64(time.Since(start).Microseconds())/1000, err)
		}
	}()

	sub, err = s.opts.stamp(n)
	if err != nil {
		return model.Submission{}, err
	}
	if _, err := s.coll.InsertOne(ctx, sub); err != nil {
		return model.Submission{}, fmt.Errorf("%w: insert submission %s: %w", ErrStoreUnavailable, sub.ID, err)
	}
	return sub, nil
}

// Get implements Store.Get.
func (s *MongoStore) Get(ctx context.Context, id string) (sub model.Submission, err error) {
	start := time.Now()
	defer func() {
		if !errors.Is(err, ErrNotFound) {
			metrics.RecordRecordStoreOp(backendMongo, "get", float64(time.Since(start).Microseconds())/1000, err)
		}
	}()

	err = s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Submission{}, ErrNotFound
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("%w: find submission %s: %w", ErrStoreUnavailable, id, err)
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	return sub, nil
}

// Close implements Store.Close.
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the server connection. Stores built with NewMongoStore have
// no client of their own and always succeed.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: ping mongo: %w", ErrStoreUnavailable, err)
	}
	return nil
}
