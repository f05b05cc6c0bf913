package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Priyapatil1612/citebase/internal/model"
	appErr "github.com/Priyapatil1612/citebase/internal/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex persists chunk vectors in the research_chunks table and
// queries them with pgvector's cosine distance operator. The column is
// declared without a fixed dimension; each namespace locks to the dimension
// of its first upsert via the dimension column.
type PostgresIndex struct {
	db *sqlx.DB
}

func NewPostgresIndex(db *sqlx.DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

func (p *PostgresIndex) namespaceDimension(ctx context.Context, namespace string) (int, error) {
	var dim int
	err := p.db.GetContext(ctx, &dim,
		`SELECT dimension FROM research_chunks WHERE namespace = $1 LIMIT 1`, namespace)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read namespace dimension: %w", err)
	}
	return dim, nil
}

func (p *PostgresIndex) Upsert(ctx context.Context, namespace string, vectors []model.ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}
	dim, err := p.namespaceDimension(ctx, namespace)
	if err != nil {
		return err
	}
	for _, v := range vectors {
		if len(v.Embedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(v.Embedding)
		}
		if len(v.Embedding) != dim {
			return &DimensionError{Namespace: namespace, Want: dim, Got: len(v.Embedding)}
		}
	}
	const query = `
		INSERT INTO research_chunks
			(id, namespace, source_url, source_title, seq, chunk_text, token_count,
			 embedding, dimension, content_hash, source_text_len, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, EXTRACT(EPOCH FROM now())::bigint)
		ON CONFLICT (id) DO UPDATE SET
			source_title = EXCLUDED.source_title,
			chunk_text = EXCLUDED.chunk_text,
			token_count = EXCLUDED.token_count,
			embedding = EXCLUDED.embedding,
			dimension = EXCLUDED.dimension,
			content_hash = EXCLUDED.content_hash,
			source_text_len = EXCLUDED.source_text_len
	`
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()
	for _, v := range vectors {
		if len(v.Embedding) == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, query,
			v.ID, namespace, v.SourceURL, v.SourceTitle, v.Seq, v.Text, v.TokenCount,
			pgvector.NewVector(v.Embedding), len(v.Embedding), v.ContentHash, v.SourceTextLen,
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", v.ID, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresIndex) Query(ctx context.Context, namespace string, embedding []float32, k int) ([]model.ScoredChunk, error) {
	dim, err := p.namespaceDimension(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, appErr.ErrEmptyIndex
	}
	if len(embedding) != dim {
		return nil, &DimensionError{Namespace: namespace, Want: dim, Got: len(embedding)}
	}
	if k <= 0 {
		return nil, nil
	}
	const query = `
		SELECT id, namespace, source_url, source_title, seq, chunk_text, token_count,
			1 - (embedding <=> $2) AS score
		FROM research_chunks
		WHERE namespace = $1
		ORDER BY embedding <=> $2 ASC, seq ASC, source_url ASC
		LIMIT $3
	`
	rows, err := p.db.QueryContext(ctx, query, namespace, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()
	var out []model.ScoredChunk
	for rows.Next() {
		var sc model.ScoredChunk
		if err := rows.Scan(&sc.ID, &sc.Namespace, &sc.SourceURL, &sc.SourceTitle,
			&sc.Seq, &sc.Text, &sc.TokenCount, &sc.Score); err != nil {
			return nil, fmt.Errorf("scan scored chunk: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PostgresIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM research_chunks WHERE namespace = $1 AND id = ANY($2)`,
		namespace, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (p *PostgresIndex) Count(ctx context.Context, namespace string) (int, error) {
	var count int
	err := p.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM research_chunks WHERE namespace = $1`, namespace)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

func (p *PostgresIndex) Sources(ctx context.Context, namespace string) ([]model.SourceStat, error) {
	const query = `
		SELECT source_url, MAX(source_title) AS source_title, MAX(content_hash) AS content_hash,
			MAX(source_text_len) AS source_text_len, array_agg(id ORDER BY seq) AS chunk_ids
		FROM research_chunks
		WHERE namespace = $1
		GROUP BY source_url
		ORDER BY source_url
	`
	rows, err := p.db.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	var out []model.SourceStat
	for rows.Next() {
		var stat model.SourceStat
		var ids pq.StringArray
		if err := rows.Scan(&stat.URL, &stat.Title, &stat.ContentHash, &stat.TextLen, &ids); err != nil {
			return nil, fmt.Errorf("scan source stat: %w", err)
		}
		stat.ChunkIDs = ids
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
