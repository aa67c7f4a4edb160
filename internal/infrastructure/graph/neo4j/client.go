// Package neo4j adapts the knowledge graph store to the bolt driver.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/infrastructure/resilience"
)

const sectionSearchQuery = `
CALL db.index.vector.queryNodes($index, $k, $embedding)
YIELD node, score
MATCH (d:Document)-[:HAS_SECTION]->(node)
RETURN node.id AS section_id,
       node.title AS title,
       node.content AS content,
       d.name AS document,
       d.type AS doc_type,
       score
ORDER BY score DESC`

type Options struct {
	Database           string
	ConnectTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

// Client is the GraphStore implementation. All sessions are read mode;
// query safety against generated text is the validator's job, access
// mode is the second lock on the same door.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	executor *resilience.Executor
	logger   *slog.Logger
}

func New(uri, user, password string, options Options) (*Client, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	return &Client{
		driver:   driver,
		database: options.Database,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]domain.GraphRow, error) {
	var rows []domain.GraphRow
	call := func(ctx context.Context) error {
		var err error
		rows, err = c.readRows(ctx, query, params)
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "neo4j.read", call, classifyNeo4jError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("neo4j read", err)
	}
	return rows, nil
}

func (c *Client) VectorQuery(ctx context.Context, index string, k int, embedding []float32) ([]domain.GraphRow, error) {
	if k <= 0 {
		k = 10
	}
	params := map[string]any{
		"index":     index,
		"k":         k,
		"embedding": toFloat64s(embedding),
	}
	return c.ExecuteRead(ctx, sectionSearchQuery, params)
}

// Explain dry-runs a query against the live schema without executing it.
func (c *Client) Explain(ctx context.Context, query string) error {
	_, err := c.readRows(ctx, "EXPLAIN "+query, nil)
	if err != nil {
		return fmt.Errorf("explain query: %w", err)
	}
	return nil
}

func (c *Client) readRows(ctx context.Context, query string, params map[string]any) ([]domain.GraphRow, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j query: %w", err)
	}

	collected, ok := records.([]*neo4j.Record)
	if !ok {
		return nil, fmt.Errorf("neo4j query: unexpected result type %T", records)
	}

	rows := make([]domain.GraphRow, 0, len(collected))
	for _, record := range collected {
		rows = append(rows, rowFromRecord(record))
	}
	return rows, nil
}

func rowFromRecord(record *neo4j.Record) domain.GraphRow {
	row := make(domain.GraphRow, len(record.Keys))
	for i, key := range record.Keys {
		row[key] = normalizeValue(record.Values[i])
	}
	return row
}

// normalizeValue flattens driver types into plain maps and slices so
// downstream prompt rendering and caching never see bolt structs.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case dbtype.Node:
		return val.Props
	case dbtype.Relationship:
		return val.Props
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func toFloat64s(embedding []float32) []float64 {
	out := make([]float64, len(embedding))
	for i, v := range embedding {
		out[i] = float64(v)
	}
	return out
}
