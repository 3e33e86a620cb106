// Package app exposes the consistency core over a JSON API.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"inkwell/core/internal/blog"
	"inkwell/core/internal/identity"
	"inkwell/core/internal/session"
	"inkwell/core/internal/store"
)

const maxImageUploadBytes = 16 << 20

// Pinger reports data-store health for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IdentityProvider is the account surface the auth endpoints drive.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password, fullName string) (identity.AuthUser, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context) error
}

type HTTPServer struct {
	articles   *blog.Service
	provider   IdentityProvider
	state      *session.State
	pinger     Pinger
	log        *zap.Logger
	corsOrigin string
	pageSize   int
}

func NewHTTPServer(articles *blog.Service, provider IdentityProvider, state *session.State, pinger Pinger, log *zap.Logger, corsOrigin string, pageSize int) *HTTPServer {
	return &HTTPServer{
		articles:   articles,
		provider:   provider,
		state:      state,
		pinger:     pinger,
		log:        log,
		corsOrigin: corsOrigin,
		pageSize:   pageSize,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup":
		s.handleSignUp(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin":
		s.handleSignIn(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signout":
		s.handleSignOut(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		s.handleSession(w, r)
	default:
		s.handleArticles(w, r)
	}
}

func (s *HTTPServer) handleArticles(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "articles" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		return
	}
	rest := parts[2:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		s.handleListArticles(w, r)
	case len(rest) == 0 && r.Method == http.MethodPost:
		s.handleSaveArticle(w, r, "")
	case len(rest) == 1 && r.Method == http.MethodGet:
		s.handleGetArticle(w, r, rest[0])
	case len(rest) == 1 && r.Method == http.MethodPut:
		s.handleSaveArticle(w, r, rest[0])
	case len(rest) == 1 && r.Method == http.MethodDelete:
		s.handleDeleteArticle(w, r, rest[0])
	case len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodGet:
		s.handleListComments(w, r, rest[0])
	case len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodPost:
		s.handleAddComment(w, r, rest[0])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"fullName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	user, err := s.provider.SignUp(r.Context(), body.Email, body.Password, body.FullName)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": user.ID, "email": user.Email, "fullName": user.FullName})
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	sess, err := s.provider.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid email or password")
			return
		}
		s.log.Error("sign-in failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "sign-in failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt.Format(time.RFC3339),
		"user":      userPayload(sess.User),
	})
}

func (s *HTTPServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.provider.SignOut(r.Context()); err != nil {
		s.log.Error("sign-out failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "sign-out failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	user := s.state.Current()
	if user == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": userPayload(*user)})
}

func (s *HTTPServer) handleListArticles(w http.ResponseWriter, r *http.Request) {
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page must be a non-negative integer")
			return
		}
		page = parsed
	}
	pageSize := s.pageSize
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "pageSize must be a positive integer")
			return
		}
		pageSize = parsed
	}

	items, err := s.articles.ListPage(r.Context(), page, pageSize)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, articlePayload(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page, "items": payload})
}

func (s *HTTPServer) handleGetArticle(w http.ResponseWriter, r *http.Request, id string) {
	item, err := s.articles.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articlePayload(item))
}

func (s *HTTPServer) handleSaveArticle(w http.ResponseWriter, r *http.Request, id string) {
	if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid multipart form")
		return
	}

	in := blog.SaveInput{
		ID:          id,
		Title:       r.FormValue("title"),
		Content:     r.FormValue("content"),
		RemoveImage: r.FormValue("removeImage") == "true",
	}

	if id != "" {
		existing, err := s.articles.GetByID(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		in.ExistingImageURL = existing.Article.ImageURL
	}

	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		in.NewImage = &blog.ImageUpload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		}
	} else if !errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid image upload")
		return
	}

	savedID, err := s.articles.Save(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"id": savedID})
}

func (s *HTTPServer) handleDeleteArticle(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.articles.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request, articleID string) {
	comments, err := s.articles.ListComments(r.Context(), articleID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		payload = append(payload, commentPayload(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": payload})
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request, articleID string) {
	var body struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	comment, err := s.articles.AddComment(r.Context(), articleID, body.Body)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentPayload(comment))
}

// writeDomainError maps the blog error taxonomy onto HTTP statuses.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	kind := blog.KindOf(err)
	switch kind {
	case blog.KindUnauthorized:
		writeError(w, http.StatusForbidden, string(kind), err.Error())
	case blog.KindValidation:
		writeError(w, http.StatusUnprocessableEntity, string(kind), err.Error())
	case blog.KindNotFound:
		writeError(w, http.StatusNotFound, string(kind), "article not found")
	case blog.KindStorage:
		writeError(w, http.StatusBadGateway, string(kind), "image upload failed")
	case blog.KindPersistence:
		s.log.Error("persistence failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(kind), "save failed")
	default:
		s.log.Error("unexpected failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "unexpected failure")
	}
}

func articlePayload(item store.ArticleWithAuthor) map[string]any {
	var author map[string]any
	if item.Author.Present {
		author = map[string]any{
			"fullName":  item.Author.Author.FullName,
			"avatarUrl": item.Author.Author.AvatarURL,
		}
	}
	return map[string]any{
		"id":        item.Article.ID,
		"title":     item.Article.Title,
		"content":   item.Article.Content,
		"imageUrl":  item.Article.ImageURL,
		"authorId":  item.Article.AuthorID,
		"createdAt": item.Article.CreatedAt.Format(time.RFC3339),
		"author":    author,
	}
}

func commentPayload(c store.Comment) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"articleId": c.ArticleID,
		"authorId":  c.AuthorID,
		"body":      c.Body,
		"createdAt": c.CreatedAt.Format(time.RFC3339),
	}
}

func userPayload(user identity.AuthUser) map[string]any {
	return map[string]any{
		"id":       user.ID,
		"email":    user.Email,
		"fullName": user.FullName,
	}
}

func pathParts(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
