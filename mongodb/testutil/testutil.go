package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.pilab.hu/market/mongodb"
)

// SetupTestMongoDB connects to TEST_MONGO_URI and returns a client bound to
// fresh, uniquely named users and products databases. Both are dropped when
// the test finishes. The test is skipped when TEST_MONGO_URI is unset, since
// transactions need a replica set that plain CI runners do not have.
func SetupTestMongoDB(t *testing.T, dbNamePrefix string) *mongodb.Client {
	t.Helper()

	mongoURI := os.Getenv("TEST_MONGO_URI")
	if mongoURI == "" {
		t.Skip("TEST_MONGO_URI not set; skipping MongoDB integration test")
	}

	suffix := time.Now().UnixNano()
	usersDB := fmt.Sprintf("%s_users_%d", dbNamePrefix, suffix)
	productsDB := fmt.Sprintf("%s_products_%d", dbNamePrefix, suffix)

	clientOpts := options.Client().ApplyURI(mongoURI)
	clientOpts.SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	clientOpts.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		t.Fatalf("Failed to create MongoDB client: %v (URI: %s)", err, mongoURI)
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err = client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Fatalf("Failed to connect to MongoDB (ping failed): %v (URI: %s)", err, mongoURI)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, name := range []string{usersDB, productsDB} {
			if err := client.Database(name).Drop(ctx); err != nil {
				t.Logf("Warning: Failed to drop database %s: %v", name, err)
			}
		}
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("Warning: Failed to disconnect MongoDB client: %v", err)
		}
	})

	return mongodb.NewClient(client, usersDB, productsDB)
}
