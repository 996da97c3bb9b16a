package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"opskb/api/internal/util"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Under the per-article row lock this should not happen for
// version numbers; the unique index is the backstop, and callers map this
// to a retryable conflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

// ---- spaces & collections ----

func (s *PostgresStore) InsertSpace(ctx context.Context, space Space) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert space: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO spaces (id, name, slug, description, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, space.ID, space.Name, space.Slug, space.Description, space.CreatedBy); err != nil {
		return fmt.Errorf("insert space: %w", err)
	}

	if err := insertAuditEvent(ctx, tx, AuditEvent{
		Action:     "SPACE_CREATE",
		EntityType: "Space",
		EntityID:   space.ID,
		Meta:       map[string]any{"name": space.Name, "slug": space.Slug},
		ActorID:    &space.CreatedBy,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) GetSpace(ctx context.Context, spaceID string) (Space, error) {
	var item Space
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, created_by, created_at, updated_at
		FROM spaces
		WHERE id=$1
	`, spaceID).Scan(&item.ID, &item.Name, &item.Slug, &item.Description, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Space{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListSpaces(ctx context.Context) ([]Space, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, created_by, created_at, updated_at
		FROM spaces
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	items := make([]Space, 0)
	for rows.Next() {
		var item Space
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.Description, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertCollection(ctx context.Context, col Collection, actorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert collection: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collections (id, space_id, name, slug, description)
		VALUES ($1, $2, $3, $4, $5)
	`, col.ID, col.SpaceID, col.Name, col.Slug, col.Description); err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}

	if err := insertAuditEvent(ctx, tx, AuditEvent{
		Action:     "COLLECTION_CREATE",
		EntityType: "Collection",
		EntityID:   col.ID,
		Meta:       map[string]any{"name": col.Name, "slug": col.Slug, "spaceId": col.SpaceID},
		ActorID:    &actorID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) GetCollection(ctx context.Context, collectionID string) (Collection, error) {
	var item Collection
	err := s.db.QueryRowContext(ctx, `
		SELECT id, space_id, name, slug, description, created_at, updated_at
		FROM collections
		WHERE id=$1
	`, collectionID).Scan(&item.ID, &item.SpaceID, &item.Name, &item.Slug, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Collection{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListCollections(ctx context.Context, spaceID string) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, space_id, name, slug, description, created_at, updated_at
		FROM collections
		WHERE space_id=$1
		ORDER BY name ASC
	`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	items := make([]Collection, 0)
	for rows.Next() {
		var item Collection
		if err := rows.Scan(&item.ID, &item.SpaceID, &item.Name, &item.Slug, &item.Description, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return items, nil
}

// ---- articles ----

const articleColumns = `id, space_id, collection_id, title, slug, type, content, status, owner_id, last_verified_at, created_by, updated_by, created_at, updated_at`

func scanArticle(row interface{ Scan(...any) error }) (Article, error) {
	var item Article
	err := row.Scan(
		&item.ID,
		&item.SpaceID,
		&item.CollectionID,
		&item.Title,
		&item.Slug,
		&item.Type,
		&item.Content,
		&item.Status,
		&item.OwnerID,
		&item.LastVerifiedAt,
		&item.CreatedBy,
		&item.UpdatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetArticle(ctx context.Context, articleID string) (Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, articleID)
	return scanArticle(row)
}

func (s *PostgresStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]Article, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 4)
	argN := 1
	if filter.SpaceID != "" {
		where = append(where, fmt.Sprintf("space_id = $%d", argN))
		args = append(args, filter.SpaceID)
		argN++
	}
	if filter.CollectionID != "" {
		where = append(where, fmt.Sprintf("collection_id = $%d", argN))
		args = append(args, filter.CollectionID)
		argN++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, filter.Status)
		argN++
	}
	if filter.Query != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR content ILIKE $%d OR slug ILIKE $%d)", argN, argN, argN))
		args = append(args, "%"+escapeLike(filter.Query)+"%")
		argN++
	}

	query := `SELECT ` + articleColumns + ` FROM articles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	items := make([]Article, 0)
	for rows.Next() {
		item, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return items, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func (s *PostgresStore) ListArticleTags(ctx context.Context, articleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name
		FROM article_tags at
		JOIN tags t ON t.id = at.tag_id
		WHERE at.article_id = $1
		ORDER BY t.name ASC
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list article tags: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag names: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) GetTagByName(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tags WHERE name=$1`, name).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateArticle inserts the projection, version 1, the initial tag links,
// and the ARTICLE_CREATE audit event in a single transaction.
func (s *PostgresStore) CreateArticle(ctx context.Context, article Article, tags []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create article: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO articles (id, space_id, collection_id, title, slug, type, content, status, owner_id, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, article.ID, article.SpaceID, article.CollectionID, article.Title, article.Slug, article.Type, article.Content, StatusDraft, article.OwnerID, article.CreatedBy); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}

	summary := "Initial version"
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO article_versions (article_id, version_number, title, content, change_summary, created_by)
		VALUES ($1, 1, $2, $3, $4, $5)
	`, article.ID, article.Title, article.Content, summary, article.CreatedBy); err != nil {
		return fmt.Errorf("insert initial version: %w", err)
	}

	if len(tags) > 0 {
		if err := reconcileTags(ctx, tx, article.ID, tags); err != nil {
			return err
		}
	}

	if err := insertAuditEvent(ctx, tx, AuditEvent{
		Action:     "ARTICLE_CREATE",
		EntityType: "Article",
		EntityID:   article.ID,
		Meta:       map[string]any{"title": article.Title, "type": article.Type, "spaceId": article.SpaceID},
		ActorID:    &article.CreatedBy,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateArticle applies a patch as one transaction: the article row is
// locked, the next version number is read under that lock, the version is
// appended, the projection is updated, tags are reconciled when present,
// and the ARTICLE_UPDATE event is recorded. Nothing is visible unless all
// of it commits.
func (s *PostgresStore) UpdateArticle(ctx context.Context, articleID string, patch ArticlePatch, actorID string) (Article, ArticleVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Article{}, ArticleVersion{}, fmt.Errorf("begin update article: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	article, err := lockArticle(ctx, tx, articleID)
	if err != nil {
		return Article{}, ArticleVersion{}, err
	}

	// Effective snapshot: patch value when present, prior stored value
	// otherwise. A patch can never null-out title or content by omission.
	if patch.Title != nil {
		article.Title = *patch.Title
		article.Slug = util.Slugify(*patch.Title)
	}
	if patch.Content != nil {
		article.Content = *patch.Content
	}
	if patch.Status != nil {
		article.Status = *patch.Status
	}
	if patch.OwnerID != nil {
		article.OwnerID = patch.OwnerID
	}
	if patch.LastVerifiedAt != nil {
		article.LastVerifiedAt = patch.LastVerifiedAt
	}
	article.UpdatedBy = actorID

	version, err := appendVersion(ctx, tx, articleID, article.Title, article.Content, patch.ChangeSummary, actorID)
	if err != nil {
		return Article{}, ArticleVersion{}, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE articles
		SET title=$2, slug=$3, content=$4, status=$5, owner_id=$6, last_verified_at=$7, updated_by=$8, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, articleID, article.Title, article.Slug, article.Content, article.Status, article.OwnerID, article.LastVerifiedAt, actorID).Scan(&article.UpdatedAt)
	if err != nil {
		return Article{}, ArticleVersion{}, fmt.Errorf("update article projection: %w", err)
	}

	if patch.Tags != nil {
		if err := reconcileTags(ctx, tx, articleID, patch.Tags); err != nil {
			return Article{}, ArticleVersion{}, err
		}
	}

	if err := insertAuditEvent(ctx, tx, AuditEvent{
		Action:     "ARTICLE_UPDATE",
		EntityType: "Article",
		EntityID:   articleID,
		Meta:       map[string]any{"version": version.VersionNumber, "status": article.Status},
		ActorID:    &actorID,
	}); err != nil {
		return Article{}, ArticleVersion{}, err
	}

	if err := tx.Commit(); err != nil {
		return Article{}, ArticleVersion{}, fmt.Errorf("commit update article: %w", err)
	}
	return article, version, nil
}

// RestoreArticleVersion copies an old snapshot forward as a new version.
// The version log is never rewound; history between the restored version
// and the new head stays intact.
func (s *PostgresStore) RestoreArticleVersion(ctx context.Context, articleID string, versionNumber int, actorID string) (Article, ArticleVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Article{}, ArticleVersion{}, fmt.Errorf("begin restore version: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	article, err := lockArticle(ctx, tx, articleID)
	if err != nil {
		return Article{}, ArticleVersion{}, err
	}

	var snapshot ArticleVersion
	err = tx.QueryRowContext(ctx, `
		SELECT article_id, version_number, title, content, change_summary, created_by, created_at
		FROM article_versions
		WHERE article_id=$1 AND version_number=$2
	`, articleID, versionNumber).Scan(
		&snapshot.ArticleID,
		&snapshot.VersionNumber,
		&snapshot.Title,
		&snapshot.Content,
		&snapshot.ChangeSummary,
		&snapshot.CreatedBy,
		&snapshot.CreatedAt,
	)
	if err != nil {
		return Article{}, ArticleVersion{}, err
	}

	article.Title = snapshot.Title
	article.Content = snapshot.Content
	article.Slug = util.Slugify(snapshot.Title)
	article.UpdatedBy = actorID

	summary := fmt.Sprintf("Restore from v%d", versionNumber)
	version, err := appendVersion(ctx, tx, articleID, article.Title, article.Content, &summary, actorID)
	if err != nil {
		return Article{}, ArticleVersion{}, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE articles
		SET title=$2, slug=$3, content=$4, updated_by=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, articleID, article.Title, article.Slug, article.Content, actorID).Scan(&article.UpdatedAt)
	if err != nil {
		return Article{}, ArticleVersion{}, fmt.Errorf("update restored projection: %w", err)
	}

	if err := insertAuditEvent(ctx, tx, AuditEvent{
		Action:     "ARTICLE_RESTORE_VERSION",
		EntityType: "Article",
		EntityID:   articleID,
		Meta:       map[string]any{"restoredFrom": versionNumber, "newVersion": version.VersionNumber},
		ActorID:    &actorID,
	}); err != nil {
		return Article{}, ArticleVersion{}, err
	}

	if err := tx.Commit(); err != nil {
		return Article{}, ArticleVersion{}, fmt.Errorf("commit restore version: %w", err)
	}
	return article, version, nil
}

// lockArticle reads the article row under FOR UPDATE, serializing all
// mutations against the same article while leaving other articles free.
func lockArticle(ctx context.Context, tx *sql.Tx, articleID string) (Article, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1 FOR UPDATE`, articleID)
	return scanArticle(row)
}

// appendVersion assigns max+1 under the article row lock. The primary key
// on (article_id, version_number) backs the no-duplicate invariant.
func appendVersion(ctx context.Context, tx *sql.Tx, articleID, title, content string, changeSummary *string, actorID string) (ArticleVersion, error) {
	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version_number), 0) + 1
		FROM article_versions
		WHERE article_id=$1
	`, articleID).Scan(&next); err != nil {
		return ArticleVersion{}, fmt.Errorf("read next version number: %w", err)
	}

	var version ArticleVersion
	err := tx.QueryRowContext(ctx, `
		INSERT INTO article_versions (article_id, version_number, title, content, change_summary, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING article_id, version_number, title, content, change_summary, created_by, created_at
	`, articleID, next, title, content, changeSummary, actorID).Scan(
		&version.ArticleID,
		&version.VersionNumber,
		&version.Title,
		&version.Content,
		&version.ChangeSummary,
		&version.CreatedBy,
		&version.CreatedAt,
	)
	if err != nil {
		return ArticleVersion{}, fmt.Errorf("append version: %w", err)
	}
	return version, nil
}

// ---- versions ----

func (s *PostgresStore) GetVersion(ctx context.Context, articleID string, versionNumber int) (ArticleVersion, error) {
	var version ArticleVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT article_id, version_number, title, content, change_summary, created_by, created_at
		FROM article_versions
		WHERE article_id=$1 AND version_number=$2
	`, articleID, versionNumber).Scan(
		&version.ArticleID,
		&version.VersionNumber,
		&version.Title,
		&version.Content,
		&version.ChangeSummary,
		&version.CreatedBy,
		&version.CreatedAt,
	)
	if err != nil {
		return ArticleVersion{}, err
	}
	return version, nil
}

// ListVersions returns the most recent versions, highest number first.
// Each call re-queries current state.
func (s *PostgresStore) ListVersions(ctx context.Context, articleID string, limit int) ([]ArticleVersion, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT article_id, version_number, title, content, change_summary, created_by, created_at
		FROM article_versions
		WHERE article_id=$1
		ORDER BY version_number DESC
		LIMIT $2
	`, articleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]ArticleVersion, 0)
	for rows.Next() {
		var version ArticleVersion
		if err := rows.Scan(
			&version.ArticleID,
			&version.VersionNumber,
			&version.Title,
			&version.Content,
			&version.ChangeSummary,
			&version.CreatedBy,
			&version.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

// ---- comments ----

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) (Comment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Comment{}, fmt.Errorf("begin insert comment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO comments (id, article_id, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, comment.ID, comment.ArticleID, comment.AuthorID, comment.Body).Scan(&comment.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	if err := insertAuditEvent(ctx, tx, AuditEvent{
		Action:     "COMMENT_CREATE",
		EntityType: "Article",
		EntityID:   comment.ArticleID,
		Meta:       map[string]any{"commentId": comment.ID},
		ActorID:    &comment.AuthorID,
	}); err != nil {
		return Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return Comment{}, fmt.Errorf("commit insert comment: %w", err)
	}
	return comment, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, articleID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, article_id, author_id, body, created_at
		FROM comments
		WHERE article_id=$1
		ORDER BY created_at DESC
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.ArticleID, &item.AuthorID, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// ---- audit ----

func insertAuditEvent(ctx context.Context, tx *sql.Tx, event AuditEvent) error {
	meta := event.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit meta: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_events (action, entity_type, entity_id, meta, actor_id)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, event.Action, event.EntityType, event.EntityID, string(payload), event.ActorID); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, meta::text, actor_id, created_at
		FROM audit_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEvent, 0)
	for rows.Next() {
		var item AuditEvent
		var meta string
		if err := rows.Scan(&item.ID, &item.Action, &item.EntityType, &item.EntityID, &meta, &item.ActorID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &item.Meta); err != nil {
			return nil, fmt.Errorf("decode audit meta: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return items, nil
}

// ---- roles ----

// RolesForUser is the external role lookup consumed by the lifecycle
// service; this store is the default backing implementation.
func (s *PostgresStore) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id=$1 ORDER BY role ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("read user roles: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return names, nil
}

// ReplaceUserRoles swaps the user's role set wholesale and records the
// admin action, all in one transaction.
func (s *PostgresStore) ReplaceUserRoles(ctx context.Context, userID string, roleNames []string, actorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace roles: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("clear user roles: %w", err)
	}
	for _, name := range roleNames {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_roles (user_id, role)
			VALUES ($1, $2)
			ON CONFLICT (user_id, role) DO NOTHING
		`, userID, name); err != nil {
			return fmt.Errorf("assign role %s: %w", name, err)
		}
	}

	if err := insertAuditEvent(ctx, tx, AuditEvent{
		Action:     "ADMIN_UPDATE_USER_ROLES",
		EntityType: "User",
		EntityID:   userID,
		Meta:       map[string]any{"roles": roleNames},
		ActorID:    &actorID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
