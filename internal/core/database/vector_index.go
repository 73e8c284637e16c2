package db

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/verifai-labs/verifai/internal/core"
)

// Namespace-to-table mapping. Each namespace is its own table, so the
// two collections grow independently and queries can never cross.
var namespaceTables = map[string]struct {
	table string
	idCol string
}{
	core.NamespaceDocuments:     {table: "verification_embeddings", idCol: "verification_id"},
	core.NamespaceFraudPatterns: {table: "fraud_pattern_embeddings", idCol: "pattern_id"},
}

// Upsert stores an embedding under (namespace, id), replacing any
// previous vector for the same id.
func (c *DatabaseClient) Upsert(ctx context.Context, namespace, id string, embedding []float32) error {
	ns, ok := namespaceTables[namespace]
	if !ok {
		return fmt.Errorf("unknown vector namespace %q", namespace)
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (%s, embedding, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (%s) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()
	`, ns.table, ns.idCol, ns.idCol)

	_, err := c.db.ExecContext(ctx, q, id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("upsert embedding %s/%s: %w", namespace, id, err)
	}
	return nil
}

// Query returns the top-k nearest neighbors in the namespace, sorted by
// descending cosine similarity. pgvector's <=> operator yields cosine
// distance; similarity is reported as 1 - distance, so the usual range
// is [0,1].
func (c *DatabaseClient) Query(ctx context.Context, namespace string, embedding []float32, k int) ([]core.Match, error) {
	ns, ok := namespaceTables[namespace]
	if !ok {
		return nil, fmt.Errorf("unknown vector namespace %q", namespace)
	}
	if k <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, ns.idCol, ns.table)

	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query embeddings %s: %w", namespace, err)
	}
	defer rows.Close()

	var out []core.Match
	for rows.Next() {
		var m core.Match
		if err := rows.Scan(&m.ID, &m.Similarity); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ core.VectorIndex = (*DatabaseClient)(nil)
