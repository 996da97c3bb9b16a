package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"opskb/api/internal/roles"
	"opskb/api/internal/search"
	"opskb/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := make(map[string]any)
		for name, err := range s.service.Readiness(ctx) {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "spaces":
		s.handleSpaces(w, r, parts[2:])
	case "articles":
		s.handleArticles(w, r, parts[2:])
	case "audit":
		s.handleAudit(w, r, parts[2:])
	case "admin":
		s.handleAdmin(w, r, parts[2:])
	case "search":
		s.handleSearch(w, r, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleSpaces(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := s.service.ListSpaces(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"spaces": items})

	case len(rest) == 0 && r.Method == http.MethodPost:
		var input CreateSpaceInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		space, err := s.service.CreateSpace(r.Context(), actorFrom(r), input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"space": space})

	case len(rest) == 1 && r.Method == http.MethodGet:
		space, err := s.service.GetSpace(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"space": space})

	case len(rest) == 2 && rest[1] == "collections" && r.Method == http.MethodGet:
		items, err := s.service.ListCollections(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"collections": items})

	case len(rest) == 2 && rest[1] == "collections" && r.Method == http.MethodPost:
		var input CreateCollectionInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		input.SpaceID = rest[0]
		col, err := s.service.CreateCollection(r.Context(), actorFrom(r), input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"collection": col})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleArticles(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		query := r.URL.Query()
		limit, ok := queryInt(w, query.Get("limit"), "limit")
		if !ok {
			return
		}
		items, err := s.service.ListArticles(r.Context(), store.ArticleFilter{
			SpaceID:      query.Get("spaceId"),
			CollectionID: query.Get("collectionId"),
			Status:       query.Get("status"),
			Query:        query.Get("q"),
			Limit:        limit,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"articles": items})

	case len(rest) == 0 && r.Method == http.MethodPost:
		var input CreateArticleInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		article, err := s.service.CreateArticle(r.Context(), actorFrom(r), input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"article": article})

	case len(rest) == 1 && r.Method == http.MethodGet:
		detail, err := s.service.GetArticle(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)

	case len(rest) == 1 && r.Method == http.MethodPatch:
		var input UpdateArticleInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.UpdateArticle(r.Context(), actorFrom(r), rest[0], input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(rest) == 2 && rest[1] == "restore" && r.Method == http.MethodPost:
		var body struct {
			VersionNumber int `json:"versionNumber"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.RestoreVersion(r.Context(), actorFrom(r), rest[0], body.VersionNumber)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(rest) == 2 && rest[1] == "versions" && r.Method == http.MethodGet:
		limit, ok := queryInt(w, r.URL.Query().Get("limit"), "limit")
		if !ok {
			return
		}
		items, err := s.service.ListVersions(r.Context(), rest[0], limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": items})

	case len(rest) == 3 && rest[1] == "versions" && r.Method == http.MethodGet:
		versionNumber, err := strconv.Atoi(rest[2])
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version number must be an integer", nil)
			return
		}
		version, err := s.service.GetVersion(r.Context(), rest[0], versionNumber)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": version})

	case len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodGet:
		items, err := s.service.ListComments(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": items})

	case len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodPost:
		var input AddCommentInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.service.AddComment(r.Context(), actorFrom(r), rest[0], input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"comment": comment})

	case len(rest) == 3 && rest[1] == "archive" && r.Method == http.MethodGet:
		content, err := s.service.ArchiveContent(r.Context(), rest[0], rest[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"articleId": rest[0],
			"hash":      rest[2],
			"content":   content,
		})

	case len(rest) == 2 && rest[1] == "archive" && r.Method == http.MethodGet:
		limit, ok := queryInt(w, r.URL.Query().Get("limit"), "limit")
		if !ok {
			return
		}
		history, err := s.service.ArchiveHistory(r.Context(), rest[0], limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": history})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	limit, ok := queryInt(w, r.URL.Query().Get("limit"), "limit")
	if !ok {
		return
	}
	items, err := s.service.ListAuditEvents(r.Context(), limit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": items})
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 3 && rest[0] == "users" && rest[2] == "roles" && r.Method == http.MethodPut {
		var input SetUserRolesInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		assigned, err := s.service.SetUserRoles(r.Context(), actorFrom(r), rest[1], input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"userId": rest[1], "roles": assigned})
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	query := r.URL.Query()
	limit, ok := queryInt(w, query.Get("limit"), "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, query.Get("offset"), "offset")
	if !ok {
		return
	}
	response, err := s.service.Search(r.Context(), search.Query{
		Text:          query.Get("q"),
		FilterType:    search.ResultType(query.Get("type")),
		FilterSpaceID: query.Get("spaceId"),
		FilterStatus:  query.Get("status"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// actorFrom builds the acting identity from request headers. Roles are
// optional; when absent they are looked up from the role store.
func actorFrom(r *http.Request) Actor {
	actor := Actor{ID: strings.TrimSpace(r.Header.Get("X-Actor-Id"))}
	if raw := r.Header.Get("X-Actor-Roles"); raw != "" {
		actor.Roles = roles.Parse(strings.Split(raw, ","))
	}
	return actor
}

func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer", nil)
		return 0, false
	}
	return value, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Actor-Id, X-Actor-Roles")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	return http.StatusInternalServerError, "STORAGE_ERROR", "Internal server error", nil
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An empty body reads as an empty input.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
