package archive

import (
	"strings"
	"testing"
)

func TestCommitVersionAndHistory(t *testing.T) {
	svc := New(t.TempDir())

	_, err := svc.CommitVersion(Snapshot{
		ArticleID:     "art_vpn",
		VersionNumber: 1,
		Title:         "VPN issue",
	}, "initial body", "alice")
	if err != nil {
		t.Fatalf("commit v1: %v", err)
	}

	_, err = svc.CommitVersion(Snapshot{
		ArticleID:     "art_vpn",
		VersionNumber: 2,
		Title:         "VPN issue",
		ChangeSummary: "expanded troubleshooting steps",
	}, "expanded body", "bob")
	if err != nil {
		t.Fatalf("commit v2: %v", err)
	}

	history, err := svc.History("art_vpn", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if !strings.HasPrefix(history[0].Message, "v2:") {
		t.Errorf("expected newest commit first, got %q", history[0].Message)
	}
	if history[0].Author != "bob" {
		t.Errorf("expected author bob, got %q", history[0].Author)
	}
	if !strings.Contains(history[0].Message, "expanded troubleshooting steps") {
		t.Errorf("expected change summary in message, got %q", history[0].Message)
	}
}

func TestCommitVersionIdempotentContent(t *testing.T) {
	svc := New(t.TempDir())

	first, err := svc.CommitVersion(Snapshot{ArticleID: "art_same", VersionNumber: 1, Title: "Same"}, "body", "alice")
	if err != nil {
		t.Fatalf("commit v1: %v", err)
	}

	// Re-archiving identical files must not create a second commit.
	second, err := svc.CommitVersion(Snapshot{ArticleID: "art_same", VersionNumber: 1, Title: "Same"}, "body", "alice")
	if err != nil {
		t.Fatalf("re-commit v1: %v", err)
	}
	if first.Hash != second.Hash {
		t.Errorf("expected same head commit, got %s and %s", first.Hash, second.Hash)
	}

	history, err := svc.History("art_same", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected 1 commit, got %d", len(history))
	}
}

func TestContentAt(t *testing.T) {
	svc := New(t.TempDir())

	info, err := svc.CommitVersion(Snapshot{ArticleID: "art_ct", VersionNumber: 1, Title: "First"}, "original text", "alice")
	if err != nil {
		t.Fatalf("commit v1: %v", err)
	}
	if _, err := svc.CommitVersion(Snapshot{ArticleID: "art_ct", VersionNumber: 2, Title: "First"}, "rewritten text", "alice"); err != nil {
		t.Fatalf("commit v2: %v", err)
	}

	content, err := svc.ContentAt("art_ct", info.Hash)
	if err != nil {
		t.Fatalf("content at %s: %v", info.Hash, err)
	}
	if content != "original text" {
		t.Errorf("expected original text, got %q", content)
	}
}

func TestHistoryUnknownArticle(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History("art_missing", 5); err == nil {
		t.Error("expected error for unknown article, got nil")
	}
}

func TestArticleIsolation(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.CommitVersion(Snapshot{ArticleID: "art_a", VersionNumber: 1, Title: "A"}, "a body", "alice"); err != nil {
		t.Fatalf("commit art_a: %v", err)
	}
	if _, err := svc.CommitVersion(Snapshot{ArticleID: "art_b", VersionNumber: 1, Title: "B"}, "b body", "bob"); err != nil {
		t.Fatalf("commit art_b: %v", err)
	}

	historyA, err := svc.History("art_a", 0)
	if err != nil {
		t.Fatalf("history art_a: %v", err)
	}
	if len(historyA) != 1 {
		t.Errorf("expected 1 commit for art_a, got %d", len(historyA))
	}
	if historyA[0].Author != "alice" {
		t.Errorf("expected author alice, got %q", historyA[0].Author)
	}
}
