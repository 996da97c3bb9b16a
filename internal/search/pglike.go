package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgLike implements Searcher with case-insensitive containment over the
// primary store. It is the fallback when Meilisearch is out; matching is
// substring-based, so results are a superset of what an exact-word engine
// would return.
type PgLike struct {
	db *sql.DB
}

// NewPgLike creates a Postgres containment searcher.
func NewPgLike(db *sql.DB) *PgLike {
	return &PgLike{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgLike) Healthy() bool {
	return true
}

// Search runs a UNION ALL query across articles and comments with ILIKE
// containment on the searchable fields.
func (p *PgLike) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{"%" + escapePattern(q.Text) + "%"}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultArticle {
		where := "(a.title ILIKE $1 OR a.content ILIKE $1 OR a.slug ILIKE $1)"
		if q.FilterSpaceID != "" {
			where += fmt.Sprintf(" AND a.space_id = $%d", argN)
			args = append(args, q.FilterSpaceID)
			argN++
		}
		if q.FilterStatus != "" {
			where += fmt.Sprintf(" AND a.status = $%d", argN)
			args = append(args, q.FilterStatus)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'article'::text AS type, a.id, a.title,
				left(a.content, 200) AS snippet,
				a.id AS article_id, a.space_id, a.status,
				a.updated_at AS rank_at
			FROM articles a
			WHERE %s`, where))
	}

	if q.FilterType == "" || q.FilterType == ResultComment {
		where := "c.body ILIKE $1"
		if q.FilterSpaceID != "" {
			where += fmt.Sprintf(" AND a.space_id = $%d", argN)
			args = append(args, q.FilterSpaceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, ''::text AS title,
				left(c.body, 200) AS snippet,
				c.article_id, a.space_id, ''::text AS status,
				c.created_at AS rank_at
			FROM comments c
			JOIN articles a ON a.id = c.article_id
			WHERE %s`, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, article_id, space_id, status
		FROM (%s) sub
		ORDER BY rank_at DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pglike count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pglike query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ArticleID, &r.SpaceID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pglike scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

func escapePattern(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgLike) LoadAllRecords(ctx context.Context) ([]ArticleRecord, []CommentRecord, error) {
	articleRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, content, space_id, type, status, slug
		FROM articles
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load articles: %w", err)
	}
	defer articleRows.Close()

	articles := make([]ArticleRecord, 0)
	for articleRows.Next() {
		var a ArticleRecord
		if err := articleRows.Scan(&a.ID, &a.Title, &a.Content, &a.SpaceID, &a.Type, &a.Status, &a.Slug); err != nil {
			return nil, nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := articleRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate articles: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.body, c.article_id, a.space_id
		FROM comments c
		JOIN articles a ON a.id = c.article_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.Body, &c.ArticleID, &c.SpaceID); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return articles, comments, nil
}
