package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
	"go.pilab.hu/market/domain"
)

// codeNamespaceExists is returned by create on an existing collection.
const codeNamespaceExists = 48

// NewObjectID generates a new MongoDB ObjectID as a string
func NewObjectID() string {
	return bson.NewObjectID().Hex()
}

type labeled interface {
	HasErrorLabel(string) bool
}

// mapErr translates driver errors into domain kinds. Timeouts and connection
// failures become ErrUnavailable so they are never mistaken for absence.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var le labeled
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	case mongo.IsTimeout(err),
		mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, mongo.ErrClientDisconnected),
		errors.As(err, &le) && le.HasErrorLabel("TransientTransactionError"):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// passthrough keeps already classified errors intact.
func passthrough(op string, err error) error {
	for _, kind := range []error{domain.ErrNotFound, domain.ErrConflict, domain.ErrUnavailable, domain.ErrInvalidInput} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return mapErr(op, err)
}

func txnOptions() *options.TransactionOptionsBuilder {
	return options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
}

// readTxn runs fn in a snapshot transaction so that multi-collection reads see
// one point in time. The driver retries transient failures, which is safe for
// reads.
func readTxn(ctx context.Context, client *mongo.Client, fn func(ctx context.Context) (any, error)) (any, error) {
	sess, err := client.StartSession()
	if err != nil {
		return nil, mapErr("start session", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	return sess.WithTransaction(ctx, fn, txnOptions())
}

// writeTxn runs fn in a single transaction and commits it exactly once. A
// failed commit is surfaced rather than retried.
func writeTxn(ctx context.Context, client *mongo.Client, op string, fn func(ctx context.Context) error) error {
	sess, err := client.StartSession()
	if err != nil {
		return mapErr(op, err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	if err := sess.StartTransaction(txnOptions()); err != nil {
		return mapErr(op, err)
	}
	sctx := mongo.NewSessionContext(ctx, sess)

	if err := fn(sctx); err != nil {
		_ = sess.AbortTransaction(context.WithoutCancel(ctx))
		return passthrough(op, err)
	}
	if err := sess.CommitTransaction(sctx); err != nil {
		return mapErr(op+": commit", err)
	}
	return nil
}
