package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultArticle ResultType = "article"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ArticleID string     `json:"articleId"`
	SpaceID   string     `json:"spaceId"`
	Status    string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterSpaceID string
	FilterStatus  string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexArticle(a ArticleRecord) error
	IndexComment(c CommentRecord) error
}

// ArticleRecord is the data we index for an article.
type ArticleRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	SpaceID string `json:"spaceId"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Slug    string `json:"slug"`
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	ArticleID string `json:"articleId"`
	SpaceID   string `json:"spaceId"`
}
