// Package devserver is an in-memory authoritative store speaking the sync
// protocol of package remote. It backs the integration tests and the
// `offsync devserver` command; nothing is persisted.
//
// Creates are de-duplicated by client token, deletes are soft (the item is
// listed with deleted=true until [Server.Purge] drops it) and listings are
// paginated in creation order.
package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/njoerd114/offsync/internal/remote"
)

const (
	defaultPerPage = 50
	maxPerPage     = 1000
)

// ErrNoItem is returned by the seeding helpers for an unknown id.
var ErrNoItem = errors.New("no such item")

// Option configures a [Server].
type Option func(*Server)

// WithClock replaces time.Now for last_modified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithCollections restricts the server to the named collections. Requests
// for any other name get 404.
func WithCollections(names ...string) Option {
	return func(s *Server) {
		s.allowed = make(map[string]bool, len(names))
		for _, n := range names {
			s.allowed[n] = true
		}
	}
}

// Server is the in-memory store. It is safe for concurrent use.
type Server struct {
	token   string
	now     func() time.Time
	allowed map[string]bool
	log     *slog.Logger
	router  chi.Router

	mu     sync.Mutex
	colls  map[string]*collection
	nextID int64
	last   time.Time
}

type collection struct {
	items  map[string]*remote.Item
	order  []string
	tokens map[string]string
}

// New returns a server that requires token as bearer credential. An empty
// token disables authentication.
func New(token string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		token: token,
		now:   time.Now,
		log:   logger,
		colls: make(map[string]*collection),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.health)
	r.Route("/v1/{collection}", func(r chi.Router) {
		r.Use(s.authenticate, s.knownCollection)
		r.Get("/", s.list)
		r.Post("/", s.create)
		r.Put("/{id}", s.update)
		r.Delete("/{id}", s.remove)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// --- middleware --------------------------------------------------------------

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get(remote.HeaderAuthorization) != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, remote.ErrorDetail{
				Code:    remote.CodeUnauthorized,
				Message: "missing or invalid bearer token",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) knownCollection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "collection")
		if s.allowed != nil && !s.allowed[name] {
			writeError(w, http.StatusNotFound, remote.ErrorDetail{
				Code:    remote.CodeNotFound,
				Message: fmt.Sprintf("unknown collection %q", name),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- handlers ----------------------------------------------------------------

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, remote.ErrorDetail{Code: remote.CodeInvalid, Message: "page must be a positive integer"})
		return
	}
	perPage, err := queryInt(r, "per_page", defaultPerPage)
	if err != nil || perPage < 1 || perPage > maxPerPage {
		writeError(w, http.StatusBadRequest, remote.ErrorDetail{
			Code:    remote.CodeInvalid,
			Message: fmt.Sprintf("per_page must be between 1 and %d", maxPerPage),
		})
		return
	}

	s.mu.Lock()
	c := s.collection(chi.URLParam(r, "collection"))
	total := len(c.order)
	lastPage := max(1, (total+perPage-1)/perPage)
	items := make([]remote.Item, 0, perPage)
	for i := (page - 1) * perPage; i < total && i < page*perPage; i++ {
		items = append(items, *c.items[c.order[i]])
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"data": items,
		"meta": remote.Meta{CurrentPage: page, LastPage: lastPage, PerPage: perPage, Total: total},
	})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientToken string          `json:"client_token"`
		Data        json.RawMessage `json:"data"`
	}
	if !decodeBody(w, r, &req, &req.Data) {
		return
	}
	token := req.ClientToken
	if token == "" {
		token = r.Header.Get(remote.HeaderIdempotencyKey)
	}

	s.mu.Lock()
	c := s.collection(chi.URLParam(r, "collection"))
	if token != "" {
		if id, ok := c.tokens[token]; ok {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, remote.ErrorDetail{
				Code:    remote.CodeDuplicateToken,
				Message: "client token already used",
				ID:      id,
			})
			return
		}
	}
	it := s.insert(c, token, req.Data)
	s.mu.Unlock()

	s.log.Debug("item created",
		"collection", chi.URLParam(r, "collection"),
		"id", it.ID,
		"client_token", token,
	)
	writeJSON(w, http.StatusCreated, map[string]any{"data": it})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data json.RawMessage `json:"data"`
	}
	if !decodeBody(w, r, &req, &req.Data) {
		return
	}

	s.mu.Lock()
	c := s.collection(chi.URLParam(r, "collection"))
	it, ok := c.items[chi.URLParam(r, "id")]
	if !ok || it.Deleted {
		s.mu.Unlock()
		notFound(w)
		return
	}
	it.Attributes = req.Data
	it.LastModified = s.stamp()
	out := *it
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c := s.collection(chi.URLParam(r, "collection"))
	it, ok := c.items[chi.URLParam(r, "id")]
	if !ok || it.Deleted {
		s.mu.Unlock()
		notFound(w)
		return
	}
	it.Deleted = true
	it.LastModified = s.stamp()
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// --- direct access -----------------------------------------------------------

// Seed stores a new item as if another client had created it.
func (s *Server) Seed(coll string, attrs any) (remote.Item, error) {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return remote.Item{}, fmt.Errorf("encoding attributes: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(s.collection(coll), "", raw), nil
}

// Edit replaces an item's attributes and bumps its last_modified.
func (s *Server) Edit(coll, id string, attrs any) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encoding attributes: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.collection(coll).items[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNoItem)
	}
	it.Attributes = raw
	it.LastModified = s.stamp()
	return nil
}

// SoftDelete marks an item deleted as if another client had removed it.
func (s *Server) SoftDelete(coll, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.collection(coll).items[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNoItem)
	}
	it.Deleted = true
	it.LastModified = s.stamp()
	return nil
}

// Purge drops soft-deleted items from coll so they vanish from listings.
// It returns how many were dropped.
func (s *Server) Purge(coll string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(coll)
	kept := c.order[:0]
	n := 0
	for _, id := range c.order {
		if c.items[id].Deleted {
			delete(c.items, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return n
}

// Items returns the live (not soft-deleted) items of coll sorted by id.
func (s *Server) Items(coll string) []remote.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(coll)
	out := make([]remote.Item, 0, len(c.items))
	for _, it := range c.items {
		if !it.Deleted {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- helpers -----------------------------------------------------------------

// collection returns the named collection, creating it on first use. The
// caller holds s.mu.
func (s *Server) collection(name string) *collection {
	c, ok := s.colls[name]
	if !ok {
		c = &collection{
			items:  make(map[string]*remote.Item),
			tokens: make(map[string]string),
		}
		s.colls[name] = c
	}
	return c
}

// insert stores a new item. The caller holds s.mu.
func (s *Server) insert(c *collection, token string, attrs json.RawMessage) remote.Item {
	s.nextID++
	it := &remote.Item{
		ID:           "srv-" + strconv.FormatInt(s.nextID, 10),
		ClientToken:  token,
		LastModified: s.stamp(),
		Attributes:   attrs,
	}
	c.items[it.ID] = it
	c.order = append(c.order, it.ID)
	if token != "" {
		c.tokens[token] = it.ID
	}
	return *it
}

// stamp returns a strictly increasing UTC time. The caller holds s.mu.
func (s *Server) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Millisecond)
	}
	s.last = t
	return t
}

// decodeBody decodes a write request and insists on an object in data.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, data *json.RawMessage) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, remote.ErrorDetail{
			Code:    remote.CodeInvalid,
			Message: "invalid JSON body: " + err.Error(),
		})
		return false
	}
	if d := strings.TrimSpace(string(*data)); !strings.HasPrefix(d, "{") {
		writeError(w, http.StatusUnprocessableEntity, remote.ErrorDetail{
			Code:    remote.CodeInvalid,
			Message: "data must be an object",
		})
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, remote.ErrorDetail{Code: remote.CodeNotFound, Message: "item not found"})
}

func writeError(w http.ResponseWriter, status int, detail remote.ErrorDetail) {
	writeJSON(w, status, remote.ErrorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
