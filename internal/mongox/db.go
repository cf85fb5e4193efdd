package mongox

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// DetectTxnSupport probes the server topology once at startup. Multi-
// document transactions need a replica set (or mongos); a standalone
// server has no setName and the store must report ErrTxnUnsupported
// instead of failing mid-commit with an unparseable server error.
func DetectTxnSupport(ctx context.Context, client *mongo.Client) (bool, error) {
	var hello bson.M
	err := client.Database("admin").
		RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).
		Decode(&hello)
	if err != nil {
		return false, fmt.Errorf("hello: %w", err)
	}
	if _, ok := hello["setName"]; ok {
		return true, nil
	}
	if msg, ok := hello["msg"]; ok && msg == "isdbgrid" { // mongos
		return true, nil
	}
	return false, nil
}
