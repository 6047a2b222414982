package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const cartsCollection = "carts"

type MongoOptions struct {
	URI      string
	Database string
	MaxPool  uint64
	// AbandonedAfter lets Mongo expire carts untouched for this long. Zero keeps them.
	AbandonedAfter time.Duration
}

// OpenMongo returns a repository on a reachable primary with the cart indexes in place.
func OpenMongo(ctx context.Context, o MongoOptions) (*MongoRepository, error) {
	opts := options.Client().ApplyURI(o.URI).SetServerSelectionTimeout(5 * time.Second)
	if o.MaxPool > 0 {
		opts.SetMaxPoolSize(o.MaxPool)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect cart store: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping cart store: %w", err)
	}

	repo := NewMongoRepository(client.Database(o.Database))
	if err := repo.ensureIndexes(ctx, o.AbandonedAfter); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return repo, nil
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.collection.Database().Client().Disconnect(ctx)
}

func (m *MongoRepository) ensureIndexes(ctx context.Context, abandonedAfter time.Duration) error {
	models := []mongo.IndexModel{{
		Keys:    bson.D{{Key: "customer_id", Value: 1}},
		Options: options.Index().SetName("customer_id_unique").SetUnique(true),
	}}
	if abandonedAfter > 0 {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().
				SetName("updated_at_ttl").
				SetExpireAfterSeconds(int32(abandonedAfter / time.Second)),
		})
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("ensure cart indexes: %w", err)
	}
	return nil
}
