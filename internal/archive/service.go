// Package archive mirrors article version history into per-article git
// repositories. The database remains the source of truth; the archive is
// a best-effort secondary record written after each committed mutation.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Snapshot is what gets committed for each version.
type Snapshot struct {
	ArticleID     string `json:"articleId"`
	VersionNumber int    `json:"versionNumber"`
	Title         string `json:"title"`
	ChangeSummary string `json:"changeSummary,omitempty"`
}

// CommitInfo describes one archived version commit.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CommitVersion records one version as a commit on main, initializing the
// article's repository on first use. Idempotent per version: re-archiving
// the same content produces no new commit.
func (s *Service) CommitVersion(snap Snapshot, content, author string) (CommitInfo, error) {
	lock := s.articleLock(snap.ArticleID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(snap.ArticleID)
	repo, err := s.openOrInit(path)
	if err != nil {
		return CommitInfo{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal snapshot meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "content.md"), []byte(content), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write content.md: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "meta.json"), append(meta, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write meta.json: %w", err)
	}
	if _, err := worktree.Add("content.md"); err != nil {
		return CommitInfo{}, fmt.Errorf("git add content: %w", err)
	}
	if _, err := worktree.Add("meta.json"); err != nil {
		return CommitInfo{}, fmt.Errorf("git add meta: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read worktree status: %w", err)
	}
	if status.IsClean() {
		return s.headInfo(repo)
	}

	message := fmt.Sprintf("v%d: %s", snap.VersionNumber, snap.Title)
	if snap.ChangeSummary != "" {
		message += "\n\n" + snap.ChangeSummary
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.opskb.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit version: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History returns the most recent archived commits, newest first.
func (s *Service) History(articleID string, limit int) ([]CommitInfo, error) {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the archived content for a commit hash.
func (s *Service) ContentAt(articleID, hash string) (string, error) {
	lock := s.articleLock(articleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(articleID))
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return "", err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File("content.md")
	if err != nil {
		return "", fmt.Errorf("load content.md from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return "", fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	contents, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read content bytes: %w", err)
	}
	return string(contents), nil
}

func (s *Service) openOrInit(path string) (*git.Repository, error) {
	if _, err := os.Stat(path); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return nil, fmt.Errorf("open repo: %w", err)
		}
		return repo, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) headInfo(repo *git.Repository) (CommitInfo, error) {
	ref, err := repo.Head()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read head commit: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

func (s *Service) repoPath(articleID string) string {
	return filepath.Join(s.baseDir, articleID)
}

func (s *Service) articleLock(articleID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[articleID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[articleID] = lock
	return lock
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
