package app

import (
	"context"
	"log"
	"strings"
	"time"

	"opskb/api/internal/archive"
	"opskb/api/internal/config"
	"opskb/api/internal/roles"
	"opskb/api/internal/search"
	"opskb/api/internal/store"
	"opskb/api/internal/util"
)

const maxChangeSummaryLen = 200

// Actor identifies who is performing an operation. Roles may arrive with
// the request; when empty they are resolved from the store.
type Actor struct {
	ID    string
	Roles roles.Set
}

type CreateSpaceInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateCollectionInput struct {
	SpaceID     string `json:"spaceId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateArticleInput struct {
	SpaceID      string   `json:"spaceId"`
	CollectionID *string  `json:"collectionId"`
	Title        string   `json:"title"`
	Type         string   `json:"type"`
	Content      string   `json:"content"`
	Tags         []string `json:"tags"`
	OwnerID      *string  `json:"ownerId"`
}

type UpdateArticleInput struct {
	Title          *string    `json:"title"`
	Content        *string    `json:"content"`
	Tags           []string   `json:"tags"`
	OwnerID        *string    `json:"ownerId"`
	Status         *string    `json:"status"`
	ChangeSummary  *string    `json:"changeSummary"`
	LastVerifiedAt *time.Time `json:"lastVerifiedAt"`
}

type AddCommentInput struct {
	Body string `json:"body"`
}

type SetUserRolesInput struct {
	Roles []string `json:"roles"`
}

// ArticleDetail is the read-side aggregate for a single article.
type ArticleDetail struct {
	Article  store.Article          `json:"article"`
	Tags     []string               `json:"tags"`
	Versions []store.ArticleVersion `json:"versions"`
	Comments []store.Comment        `json:"comments"`
}

// UpdateResult pairs the refreshed projection with the version the update
// appended.
type UpdateResult struct {
	Article store.Article        `json:"article"`
	Version store.ArticleVersion `json:"version"`
}

type dataStore interface {
	InsertSpace(context.Context, store.Space) error
	GetSpace(context.Context, string) (store.Space, error)
	ListSpaces(context.Context) ([]store.Space, error)
	InsertCollection(context.Context, store.Collection, string) error
	GetCollection(context.Context, string) (store.Collection, error)
	ListCollections(context.Context, string) ([]store.Collection, error)
	CreateArticle(context.Context, store.Article, []string) error
	GetArticle(context.Context, string) (store.Article, error)
	ListArticles(context.Context, store.ArticleFilter) ([]store.Article, error)
	ListArticleTags(context.Context, string) ([]string, error)
	UpdateArticle(context.Context, string, store.ArticlePatch, string) (store.Article, store.ArticleVersion, error)
	RestoreArticleVersion(context.Context, string, int, string) (store.Article, store.ArticleVersion, error)
	GetVersion(context.Context, string, int) (store.ArticleVersion, error)
	ListVersions(context.Context, string, int) ([]store.ArticleVersion, error)
	InsertComment(context.Context, store.Comment) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	ListAuditEvents(context.Context, int) ([]store.AuditEvent, error)
	RolesForUser(context.Context, string) ([]string, error)
	ReplaceUserRoles(context.Context, string, []string, string) error
	Ping(context.Context) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexArticle(a search.ArticleRecord)
	IndexComment(c search.CommentRecord)
}

// ArticleCache is the optional projection cache in front of GetArticle.
type ArticleCache interface {
	Get(context.Context, string) (store.Article, error)
	Set(context.Context, store.Article) error
	Invalidate(context.Context, string) error
	Ping(context.Context) error
}

// VersionArchive is the optional git mirror of version history.
type VersionArchive interface {
	CommitVersion(archive.Snapshot, string, string) (archive.CommitInfo, error)
	History(string, int) ([]archive.CommitInfo, error)
	ContentAt(articleID, hash string) (string, error)
}

type Service struct {
	cfg     config.Config
	store   dataStore
	search  searchService
	cache   ArticleCache
	archive VersionArchive
}

// New wires the lifecycle service. search, cache, and archive are
// optional; a nil value disables that side channel.
func New(cfg config.Config, dataStore dataStore, searchSvc searchService, articleCache ArticleCache, versionArchive VersionArchive) *Service {
	return &Service{
		cfg:     cfg,
		store:   dataStore,
		search:  searchSvc,
		cache:   articleCache,
		archive: versionArchive,
	}
}

// Readiness pings the store and, when configured, the cache. The returned
// map holds one entry per dependency; a nil value means healthy.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if s.cache != nil {
		checks["cache"] = s.cache.Ping(ctx)
	}
	return checks
}

// resolveRoles falls back to the stored role assignments when the request
// did not carry any.
func (s *Service) resolveRoles(ctx context.Context, actor Actor) (roles.Set, error) {
	if len(actor.Roles) > 0 {
		return actor.Roles, nil
	}
	if actor.ID == "" {
		return roles.Set{}, nil
	}
	names, err := s.store.RolesForUser(ctx, actor.ID)
	if err != nil {
		return nil, storageError(err)
	}
	return roles.Parse(names), nil
}

func (s *Service) requireActor(actor Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return forbiddenError("an acting user is required")
	}
	return nil
}

func (s *Service) requireRoles(ctx context.Context, actor Actor, required roles.Set, action string) error {
	if err := s.requireActor(actor); err != nil {
		return err
	}
	actorRoles, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return err
	}
	if !roles.Authorize(actorRoles, required) {
		return forbiddenError("actor lacks a role permitted to " + action)
	}
	return nil
}

// ---- spaces & collections ----

func (s *Service) CreateSpace(ctx context.Context, actor Actor, input CreateSpaceInput) (store.Space, error) {
	if err := s.requireRoles(ctx, actor, roles.WriteRoles, "create spaces"); err != nil {
		return store.Space{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Space{}, validationError("name is required", nil)
	}

	space := store.Space{
		ID:          util.NewID("sp"),
		Name:        name,
		Slug:        util.Slugify(name),
		Description: strings.TrimSpace(input.Description),
		CreatedBy:   actor.ID,
	}
	if err := s.store.InsertSpace(ctx, space); err != nil {
		return store.Space{}, storeError(err, "space")
	}
	return space, nil
}

func (s *Service) ListSpaces(ctx context.Context) ([]store.Space, error) {
	items, err := s.store.ListSpaces(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return items, nil
}

func (s *Service) GetSpace(ctx context.Context, spaceID string) (store.Space, error) {
	item, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return store.Space{}, storeError(err, "space")
	}
	return item, nil
}

func (s *Service) CreateCollection(ctx context.Context, actor Actor, input CreateCollectionInput) (store.Collection, error) {
	if err := s.requireRoles(ctx, actor, roles.WriteRoles, "create collections"); err != nil {
		return store.Collection{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Collection{}, validationError("name is required", nil)
	}
	if _, err := s.store.GetSpace(ctx, input.SpaceID); err != nil {
		return store.Collection{}, storeError(err, "space")
	}

	col := store.Collection{
		ID:          util.NewID("col"),
		SpaceID:     input.SpaceID,
		Name:        name,
		Slug:        util.Slugify(name),
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.store.InsertCollection(ctx, col, actor.ID); err != nil {
		return store.Collection{}, storeError(err, "collection")
	}
	return col, nil
}

func (s *Service) ListCollections(ctx context.Context, spaceID string) ([]store.Collection, error) {
	if _, err := s.store.GetSpace(ctx, spaceID); err != nil {
		return nil, storeError(err, "space")
	}
	items, err := s.store.ListCollections(ctx, spaceID)
	if err != nil {
		return nil, storageError(err)
	}
	return items, nil
}

// ---- articles ----

func validateTitle(title string) error {
	if len(strings.TrimSpace(title)) < 3 {
		return validationError("title must be at least 3 characters", nil)
	}
	return nil
}

func (s *Service) CreateArticle(ctx context.Context, actor Actor, input CreateArticleInput) (store.Article, error) {
	if err := s.requireRoles(ctx, actor, roles.WriteRoles, "create articles"); err != nil {
		return store.Article{}, err
	}
	if err := validateTitle(input.Title); err != nil {
		return store.Article{}, err
	}
	if _, ok := store.ArticleTypes[input.Type]; !ok {
		return store.Article{}, validationError("invalid article type", map[string]any{"type": input.Type})
	}
	if _, err := s.store.GetSpace(ctx, input.SpaceID); err != nil {
		return store.Article{}, storeError(err, "space")
	}
	if input.CollectionID != nil {
		col, err := s.store.GetCollection(ctx, *input.CollectionID)
		if err != nil {
			return store.Article{}, storeError(err, "collection")
		}
		if col.SpaceID != input.SpaceID {
			return store.Article{}, validationError("collection belongs to a different space", nil)
		}
	}

	title := strings.TrimSpace(input.Title)
	article := store.Article{
		ID:           util.NewID("art"),
		SpaceID:      input.SpaceID,
		CollectionID: input.CollectionID,
		Title:        title,
		Slug:         util.Slugify(title),
		Type:         input.Type,
		Content:      input.Content,
		Status:       store.StatusDraft,
		OwnerID:      input.OwnerID,
		CreatedBy:    actor.ID,
		UpdatedBy:    actor.ID,
	}
	tags := store.NormalizeTagNames(input.Tags)
	if err := s.store.CreateArticle(ctx, article, tags); err != nil {
		return store.Article{}, storeError(err, "article")
	}

	created, err := s.store.GetArticle(ctx, article.ID)
	if err != nil {
		return store.Article{}, storeError(err, "article")
	}
	s.afterMutation(ctx, created, 1, "Initial version")
	return created, nil
}

func (s *Service) UpdateArticle(ctx context.Context, actor Actor, articleID string, input UpdateArticleInput) (UpdateResult, error) {
	if err := s.requireActor(actor); err != nil {
		return UpdateResult{}, err
	}
	actorRoles, err := s.resolveRoles(ctx, actor)
	if err != nil {
		return UpdateResult{}, err
	}
	if !roles.Authorize(actorRoles, roles.WriteRoles) {
		return UpdateResult{}, forbiddenError("actor lacks a role permitted to edit articles")
	}

	if input.Title != nil {
		if err := validateTitle(*input.Title); err != nil {
			return UpdateResult{}, err
		}
	}
	if input.ChangeSummary != nil && len(*input.ChangeSummary) > maxChangeSummaryLen {
		return UpdateResult{}, validationError("changeSummary must be at most 200 characters", nil)
	}
	if input.Status != nil {
		status := *input.Status
		if _, ok := store.ArticleStatuses[status]; !ok {
			return UpdateResult{}, validationError("invalid article status", map[string]any{"status": status})
		}
		// Entering PUBLISHED or DEPRECATED is the privileged transition;
		// everything else is open to any writer.
		if status == store.StatusPublished || status == store.StatusDeprecated {
			if !roles.Authorize(actorRoles, roles.PublishRoles) {
				return UpdateResult{}, forbiddenError("actor lacks a role permitted to set status " + status)
			}
		}
	}

	patch := store.ArticlePatch{
		Title:          trimPtr(input.Title),
		Content:        input.Content,
		OwnerID:        input.OwnerID,
		Status:         input.Status,
		ChangeSummary:  input.ChangeSummary,
		LastVerifiedAt: input.LastVerifiedAt,
	}
	if input.Tags != nil {
		patch.Tags = store.NormalizeTagNames(input.Tags)
	}

	article, version, err := s.store.UpdateArticle(ctx, articleID, patch, actor.ID)
	if err != nil {
		return UpdateResult{}, storeError(err, "article")
	}

	summary := ""
	if version.ChangeSummary != nil {
		summary = *version.ChangeSummary
	}
	s.afterMutation(ctx, article, version.VersionNumber, summary)
	return UpdateResult{Article: article, Version: version}, nil
}

// RestoreVersion copies an older snapshot forward as a brand-new version.
// It is always a privileged operation regardless of the article's current
// status, and it never touches the status itself.
func (s *Service) RestoreVersion(ctx context.Context, actor Actor, articleID string, versionNumber int) (UpdateResult, error) {
	if err := s.requireRoles(ctx, actor, roles.PublishRoles, "restore versions"); err != nil {
		return UpdateResult{}, err
	}
	if versionNumber < 1 {
		return UpdateResult{}, validationError("versionNumber must be at least 1", nil)
	}

	article, version, err := s.store.RestoreArticleVersion(ctx, articleID, versionNumber, actor.ID)
	if err != nil {
		return UpdateResult{}, storeError(err, "article version")
	}

	summary := ""
	if version.ChangeSummary != nil {
		summary = *version.ChangeSummary
	}
	s.afterMutation(ctx, article, version.VersionNumber, summary)
	return UpdateResult{Article: article, Version: version}, nil
}

func (s *Service) GetArticle(ctx context.Context, articleID string) (ArticleDetail, error) {
	article, err := s.cachedArticle(ctx, articleID)
	if err != nil {
		return ArticleDetail{}, err
	}

	tags, err := s.store.ListArticleTags(ctx, articleID)
	if err != nil {
		return ArticleDetail{}, storageError(err)
	}
	versions, err := s.store.ListVersions(ctx, articleID, 20)
	if err != nil {
		return ArticleDetail{}, storageError(err)
	}
	comments, err := s.store.ListComments(ctx, articleID)
	if err != nil {
		return ArticleDetail{}, storageError(err)
	}

	return ArticleDetail{
		Article:  article,
		Tags:     tags,
		Versions: versions,
		Comments: comments,
	}, nil
}

func (s *Service) cachedArticle(ctx context.Context, articleID string) (store.Article, error) {
	if s.cache != nil {
		if article, err := s.cache.Get(ctx, articleID); err == nil {
			return article, nil
		}
	}
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return store.Article{}, storeError(err, "article")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, article); err != nil {
			log.Printf("app: cache article %s: %v", articleID, err)
		}
	}
	return article, nil
}

func (s *Service) ListArticles(ctx context.Context, filter store.ArticleFilter) ([]store.Article, error) {
	if filter.Status != "" {
		if _, ok := store.ArticleStatuses[filter.Status]; !ok {
			return nil, validationError("invalid status filter", map[string]any{"status": filter.Status})
		}
	}
	items, err := s.store.ListArticles(ctx, filter)
	if err != nil {
		return nil, storageError(err)
	}
	return items, nil
}

func (s *Service) ListVersions(ctx context.Context, articleID string, limit int) ([]store.ArticleVersion, error) {
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return nil, storeError(err, "article")
	}
	items, err := s.store.ListVersions(ctx, articleID, limit)
	if err != nil {
		return nil, storageError(err)
	}
	return items, nil
}

func (s *Service) GetVersion(ctx context.Context, articleID string, versionNumber int) (store.ArticleVersion, error) {
	version, err := s.store.GetVersion(ctx, articleID, versionNumber)
	if err != nil {
		return store.ArticleVersion{}, storeError(err, "article version")
	}
	return version, nil
}

// ArchiveHistory exposes the git mirror of an article's version history.
func (s *Service) ArchiveHistory(ctx context.Context, articleID string, limit int) ([]archive.CommitInfo, error) {
	if s.archive == nil {
		return []archive.CommitInfo{}, nil
	}
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return nil, storeError(err, "article")
	}
	history, err := s.archive.History(articleID, limit)
	if err != nil {
		log.Printf("app: archive history %s: %v", articleID, err)
		return []archive.CommitInfo{}, nil
	}
	return history, nil
}

// ArchiveContent returns the article content recorded at a specific
// archive commit.
func (s *Service) ArchiveContent(ctx context.Context, articleID, hash string) (string, error) {
	if s.archive == nil {
		return "", notFoundError("archive snapshot not found")
	}
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return "", storeError(err, "article")
	}
	content, err := s.archive.ContentAt(articleID, hash)
	if err != nil {
		return "", notFoundError("archive snapshot not found")
	}
	return content, nil
}

// ---- comments ----

func (s *Service) AddComment(ctx context.Context, actor Actor, articleID string, input AddCommentInput) (store.Comment, error) {
	if err := s.requireActor(actor); err != nil {
		return store.Comment{}, err
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return store.Comment{}, validationError("body is required", nil)
	}
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return store.Comment{}, storeError(err, "article")
	}

	comment, err := s.store.InsertComment(ctx, store.Comment{
		ID:        util.NewID("cmt"),
		ArticleID: articleID,
		AuthorID:  actor.ID,
		Body:      body,
	})
	if err != nil {
		return store.Comment{}, storeError(err, "comment")
	}

	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:        comment.ID,
			Body:      comment.Body,
			ArticleID: articleID,
			SpaceID:   article.SpaceID,
		})
	}
	return comment, nil
}

func (s *Service) ListComments(ctx context.Context, articleID string) ([]store.Comment, error) {
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return nil, storeError(err, "article")
	}
	items, err := s.store.ListComments(ctx, articleID)
	if err != nil {
		return nil, storageError(err)
	}
	return items, nil
}

// ---- audit & roles ----

func (s *Service) ListAuditEvents(ctx context.Context, limit int) ([]store.AuditEvent, error) {
	items, err := s.store.ListAuditEvents(ctx, limit)
	if err != nil {
		return nil, storageError(err)
	}
	return items, nil
}

func (s *Service) SetUserRoles(ctx context.Context, actor Actor, userID string, input SetUserRolesInput) ([]string, error) {
	if err := s.requireRoles(ctx, actor, roles.NewSet(roles.RoleAdmin), "manage user roles"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("userId is required", nil)
	}
	for _, name := range input.Roles {
		if !roles.Valid(name) {
			return nil, validationError("invalid role", map[string]any{"role": name})
		}
	}

	assigned := roles.Parse(input.Roles).Names()
	if err := s.store.ReplaceUserRoles(ctx, userID, assigned, actor.ID); err != nil {
		return nil, storageError(err)
	}
	return assigned, nil
}

// ---- search ----

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, validationError("query text is required", nil)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(q), nil
}

// afterMutation runs the best-effort side channels once a mutation has
// committed: cache invalidation, search indexing, and the git archive.
// None of them can fail the request.
func (s *Service) afterMutation(ctx context.Context, article store.Article, versionNumber int, changeSummary string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, article.ID); err != nil {
			log.Printf("app: invalidate cache %s: %v", article.ID, err)
		}
	}
	if s.search != nil {
		s.search.IndexArticle(search.ArticleRecord{
			ID:      article.ID,
			Title:   article.Title,
			Content: article.Content,
			SpaceID: article.SpaceID,
			Type:    article.Type,
			Status:  article.Status,
			Slug:    article.Slug,
		})
	}
	if s.archive != nil {
		snap := archive.Snapshot{
			ArticleID:     article.ID,
			VersionNumber: versionNumber,
			Title:         article.Title,
			ChangeSummary: changeSummary,
		}
		content := article.Content
		author := article.UpdatedBy
		go func() {
			if _, err := s.archive.CommitVersion(snap, content, author); err != nil {
				log.Printf("app: archive version %s v%d: %v", snap.ArticleID, snap.VersionNumber, err)
			}
		}()
	}
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
