package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

// Options configures the shared MongoDB connection.
type Options struct {
	URI              string
	UsersDB          string
	ProductsDB       string
	MaxPoolSize      uint64
	MinPoolSize      uint64
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// Client owns the process-wide connection pool. Construct it once at startup,
// hand it to repositories and Close it on shutdown.
type Client struct {
	client *mongo.Client
	opts   Options
}

// Connect dials MongoDB and verifies the primary is reachable.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.URI == "" {
		return nil, errors.New("mongodb: URI is required")
	}
	if opts.UsersDB == "" {
		opts.UsersDB = DefaultUsersDB
	}
	if opts.ProductsDB == "" {
		opts.ProductsDB = DefaultProductsDB
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	clientOptions := options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerSelectionTimeout(opts.ConnectTimeout).
		SetMonitor(otelmongo.NewMonitor())
	if opts.OperationTimeout > 0 {
		clientOptions.SetTimeout(opts.OperationTimeout)
	}
	if opts.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(opts.MinPoolSize)
	}

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, mapErr("connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, mapErr("ping primary", err)
	}

	log.Info().
		Str("users_db", opts.UsersDB).
		Str("products_db", opts.ProductsDB).
		Msg("MongoDB client initialized successfully.")

	return &Client{client: client, opts: opts}, nil
}

// NewClient wraps an already connected driver client.
func NewClient(client *mongo.Client, usersDB, productsDB string) *Client {
	if usersDB == "" {
		usersDB = DefaultUsersDB
	}
	if productsDB == "" {
		productsDB = DefaultProductsDB
	}
	return &Client{client: client, opts: Options{UsersDB: usersDB, ProductsDB: productsDB}}
}

func (c *Client) Users() *mongo.Database {
	return c.client.Database(c.opts.UsersDB)
}

func (c *Client) Products() *mongo.Database {
	return c.client.Database(c.opts.ProductsDB)
}

// Ping is used by health checks.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return mapErr("ping", c.client.Ping(pingCtx, readpref.Primary()))
}

// Close disconnects the pool.
func (c *Client) Close(ctx context.Context) {
	log.Info().Msg("Closing MongoDB connection.")
	if err := c.client.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("Error closing MongoDB connection")
	}
}
