package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres containment search.
type Service struct {
	meili  *Meili
	pglike *PgLike
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pglike *PgLike) *Service {
	return &Service{meili: meili, pglike: pglike}
}

// Search tries Meilisearch if healthy, otherwise the Postgres fallback.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pglike.Search(q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexArticle indexes an article (fire-and-forget to Meilisearch).
func (s *Service) IndexArticle(a ArticleRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexArticle(a); err != nil {
			log.Printf("search: index article %s: %v", a.ID, err)
		}
	}()
}

// IndexComment indexes a comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(c CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexComment(c); err != nil {
			log.Printf("search: index comment %s: %v", c.ID, err)
		}
	}()
}

// ReindexAllFromStore reads all searchable entities from Postgres and
// pushes them to Meilisearch. Called at startup when Meilisearch is up.
func (s *Service) ReindexAllFromStore(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pglike == nil {
		return
	}
	articles, comments, err := s.pglike.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexArticles(articles); err != nil {
		log.Printf("search: reindex articles: %v", err)
	}
	if err := s.meili.IndexComments(comments); err != nil {
		log.Printf("search: reindex comments: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
