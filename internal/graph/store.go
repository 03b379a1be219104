package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/Byeongcheol-Kim/graphchat/internal/platform/graphdb"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

// defaultOpTimeout bounds any store operation whose caller carries no
// deadline of its own.
const defaultOpTimeout = 5 * time.Second

// Store wraps the driver with transaction helpers and error classification.
// It is value-neutral: invariants live in the repositories.
type Store struct {
	client *graphdb.Client
	log    *logger.Logger
}

func NewStore(client *graphdb.Client, log *logger.Logger) *Store {
	return &Store{
		client: client,
		log:    log.With("component", "GraphStore"),
	}
}

func (s *Store) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultOpTimeout)
}

func (s *Store) newSession(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

// Read runs work inside a managed read transaction.
func (s *Store) Read(ctx context.Context, op string, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	session := s.newSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, work)
	if err != nil {
		return nil, Classify(op, err)
	}
	return out, nil
}

// Write runs work inside a managed write transaction. Each logical operation
// (session+root insert, message insert + node stat recompute, summary node +
// source relations) is one call, hence one transaction.
func (s *Store) Write(ctx context.Context, op string, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		return nil, Classify(op, err)
	}
	return out, nil
}

// RunConsume executes a statement for its side effects only.
func RunConsume(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// Collect executes a statement and gathers all records.
func Collect(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([]*db.Record, error) {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return res.Collect(ctx)
}

// Single executes a statement expected to yield exactly one record; zero
// records surface as NotFound tagged with op.
func Single(ctx context.Context, tx neo4j.ManagedTransaction, op string, cypher string, params map[string]any) (*db.Record, error) {
	records, err := Collect(ctx, tx, cypher, params)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, NotFound(op, fmt.Errorf("no rows"))
	}
	return records[0], nil
}
