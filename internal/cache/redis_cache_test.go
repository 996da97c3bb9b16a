package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"opskb/api/internal/store"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*ArticleCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewArticleCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create article cache: %v", err)
	}
	return c, s
}

func TestNewArticleCache(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	c, err := NewArticleCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewArticleCache failed: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSetAndGetArticle(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	article := store.Article{
		ID:      "art_abc",
		SpaceID: "sp_ops",
		Title:   "Database failover runbook",
		Slug:    "database-failover-runbook",
		Type:    "RUNBOOK",
		Status:  store.StatusDraft,
	}

	if err := c.Set(ctx, article); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "art_abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != article.Title {
		t.Errorf("expected title %q, got %q", article.Title, got.Title)
	}
	if got.Status != store.StatusDraft {
		t.Errorf("expected status %s, got %s", store.StatusDraft, got.Status)
	}
}

func TestGetMiss(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	_, err := c.Get(context.Background(), "art_missing")
	if !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestGetExpired(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	c, err := NewArticleCache("redis://"+s.Addr(), time.Millisecond)
	if err != nil {
		t.Fatalf("NewArticleCache failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, store.Article{ID: "art_ttl"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	_, err = c.Get(ctx, "art_ttl")
	if !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss for expired entry, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, store.Article{ID: "art_inv", Title: "Before"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := c.Invalidate(ctx, "art_inv"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	_, err := c.Get(ctx, "art_inv")
	if !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after invalidate, got %v", err)
	}
}

func TestInvalidateMissing(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	if err := c.Invalidate(context.Background(), "art_never_cached"); err != nil {
		t.Errorf("Invalidate for missing key failed: %v", err)
	}
}

func TestCacheIsolation(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, store.Article{ID: "art_one", Title: "One"}); err != nil {
		t.Fatalf("Set art_one failed: %v", err)
	}
	if err := c.Set(ctx, store.Article{ID: "art_two", Title: "Two"}); err != nil {
		t.Fatalf("Set art_two failed: %v", err)
	}

	if err := c.Invalidate(ctx, "art_one"); err != nil {
		t.Fatalf("Invalidate art_one failed: %v", err)
	}

	if _, err := c.Get(ctx, "art_one"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss for art_one, got %v", err)
	}
	got, err := c.Get(ctx, "art_two")
	if err != nil {
		t.Fatalf("Get art_two failed: %v", err)
	}
	if got.Title != "Two" {
		t.Errorf("expected title Two, got %q", got.Title)
	}
}
