package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"opskb/api/internal/util"
)

// NormalizeTagNames trims, lowercases, drops empties, and dedupes while
// preserving first-seen order. Reconciling with the output twice is a
// no-op the second time.
func NormalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	normalized := make([]string, 0, len(names))
	for _, raw := range names {
		name := normalizeTagName(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		normalized = append(normalized, name)
	}
	return normalized
}

func normalizeTagName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// reconcileTags brings the article's linked tag set to exactly desired.
// Tag rows are upserted on first use and never deleted, only unlinked.
// Runs inside the caller's mutation transaction.
func reconcileTags(ctx context.Context, tx *sql.Tx, articleID string, desired []string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT t.id, t.name
		FROM article_tags at
		JOIN tags t ON t.id = at.tag_id
		WHERE at.article_id = $1
	`, articleID)
	if err != nil {
		return fmt.Errorf("list linked tags: %w", err)
	}
	current := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return fmt.Errorf("scan linked tag: %w", err)
		}
		current[name] = id
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate linked tags: %w", err)
	}
	rows.Close()

	want := make(map[string]struct{}, len(desired))
	for _, name := range desired {
		want[name] = struct{}{}
		if _, linked := current[name]; linked {
			continue
		}
		var tagID string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tags (id, name)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, util.NewID("tag"), name).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO article_tags (article_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT (article_id, tag_id) DO NOTHING
		`, articleID, tagID); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}

	for name, tagID := range current {
		if _, keep := want[name]; keep {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM article_tags WHERE article_id=$1 AND tag_id=$2
		`, articleID, tagID); err != nil {
			return fmt.Errorf("unlink tag %q: %w", name, err)
		}
	}
	return nil
}
