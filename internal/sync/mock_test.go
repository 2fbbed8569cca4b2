package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// --- Test payload ------------------------------------------------------------

type note struct {
	Title string
	Body  string
	Owner string
	// Draft is local-only and never sent to the remote store.
	Draft bool
}

func (n note) RemoteShape() any {
	return map[string]any{"title": n.Title, "body": n.Body, "owner": n.Owner}
}

func (n note) MergeFields(remote note) note {
	n.Title = remote.Title
	n.Body = remote.Body
	n.Owner = remote.Owner
	return n
}

func (n note) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	return nil
}

func (n note) ContentHash() string {
	return n.Title + "\x00" + n.Body + "\x00" + n.Owner
}

func (n note) OwnerID() string { return n.Owner }

// --- Mock Local Store --------------------------------------------------------

type mockStore[T any] struct {
	mu      sync.Mutex
	records map[string]*Record[T] // local ID → record

	listErr error
}

func newMockStore[T any](recs ...*Record[T]) *mockStore[T] {
	s := &mockStore[T]{records: make(map[string]*Record[T])}
	for _, r := range recs {
		s.records[r.LocalID] = r.clone()
	}
	return s
}

func (s *mockStore[T]) Get(_ context.Context, localID string) (*Record[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[localID]
	if !ok {
		return nil, nil //nolint:nilnil
	}
	return r.clone(), nil
}

func (s *mockStore[T]) GetByRemoteID(_ context.Context, remoteID string) (*Record[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.RemoteID == remoteID {
			return r.clone(), nil
		}
	}
	return nil, nil //nolint:nilnil
}

func (s *mockStore[T]) ListByStatus(_ context.Context, status Status) ([]*Record[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*Record[T]
	for _, r := range s.records {
		if r.Status == status {
			out = append(out, r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out, nil
}

func (s *mockStore[T]) Upsert(_ context.Context, rec *Record[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.LocalID] = rec.clone()
	return nil
}

func (s *mockStore[T]) Delete(_ context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, localID)
	return nil
}

func (s *mockStore[T]) get(localID string) *Record[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[localID]; ok {
		return r.clone()
	}
	return nil
}

func (s *mockStore[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// --- Mock Remote Client ------------------------------------------------------

var remoteEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type mockRemote[T any] struct {
	mu      sync.Mutex
	items   map[string]*RemoteRecord[T] // remote ID → record
	tokens  map[string]string           // client token → remote ID
	nextID  int
	clock   time.Time
	calls   []string
	offline bool

	// Failure injection.
	loseCreateResponse bool // store the create but report a transport failure
	malformedCreate    bool // answer creates without an id and store nothing
	rejectUpdate       bool
	listErrPage        int // fail the listing on this page
	badPage            bool
	beforeCreate       func()
}

func newMockRemote[T any]() *mockRemote[T] {
	return &mockRemote[T]{
		items:  make(map[string]*RemoteRecord[T]),
		tokens: make(map[string]string),
		clock:  remoteEpoch,
	}
}

// tick advances the remote clock; callers hold m.mu.
func (m *mockRemote[T]) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *mockRemote[T]) seed(payload T) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("r-%d", m.nextID)
	m.items[id] = &RemoteRecord[T]{RemoteID: id, Payload: payload, LastModified: m.tick()}
	return id
}

func (m *mockRemote[T]) Create(_ context.Context, payload T, clientToken string) (RemoteRecord[T], error) {
	if hook := m.takeBeforeCreate(); hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "create")

	if m.offline {
		return RemoteRecord[T]{}, ErrNetworkUnavailable
	}
	if m.malformedCreate {
		return RemoteRecord[T]{}, nil
	}
	if id, ok := m.tokens[clientToken]; ok {
		return RemoteRecord[T]{}, &DuplicateTokenError{ClientToken: clientToken, RemoteID: id}
	}

	m.nextID++
	id := fmt.Sprintf("r-%d", m.nextID)
	rec := &RemoteRecord[T]{RemoteID: id, ClientToken: clientToken, Payload: payload, LastModified: m.tick()}
	m.items[id] = rec
	m.tokens[clientToken] = id

	if m.loseCreateResponse {
		return RemoteRecord[T]{}, fmt.Errorf("reading response: %w", ErrNetworkUnavailable)
	}
	return *rec, nil
}

func (m *mockRemote[T]) Update(_ context.Context, remoteID string, payload T) (RemoteRecord[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "update")

	if m.offline {
		return RemoteRecord[T]{}, ErrNetworkUnavailable
	}
	if m.rejectUpdate {
		return RemoteRecord[T]{}, &RemoteRejectedError{Operation: "update", Code: 422, Message: "rejected"}
	}
	rec, ok := m.items[remoteID]
	if !ok || rec.Deleted {
		return RemoteRecord[T]{}, ErrNotFound
	}
	rec.Payload = payload
	rec.LastModified = m.tick()
	return *rec, nil
}

func (m *mockRemote[T]) Delete(_ context.Context, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete")

	if m.offline {
		return ErrNetworkUnavailable
	}
	if _, ok := m.items[remoteID]; !ok {
		return ErrNotFound
	}
	delete(m.items, remoteID)
	return nil
}

func (m *mockRemote[T]) List(_ context.Context, page, pageSize int) (Page[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "list")

	if m.offline {
		return Page[T]{}, ErrNetworkUnavailable
	}
	if m.listErrPage == page {
		return Page[T]{}, fmt.Errorf("page %d: %w", page, ErrNetworkUnavailable)
	}

	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	last := (len(ids) + pageSize - 1) / pageSize
	if last == 0 {
		last = 1
	}
	pg := Page[T]{CurrentPage: page, LastPage: last}
	if m.badPage {
		pg.CurrentPage = page + 1
	}
	start := (page - 1) * pageSize
	for i := start; i < len(ids) && i < start+pageSize; i++ {
		pg.Items = append(pg.Items, *m.items[ids[i]])
	}
	return pg, nil
}

func (m *mockRemote[T]) takeBeforeCreate() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	hook := m.beforeCreate
	m.beforeCreate = nil
	return hook
}

func (m *mockRemote[T]) get(remoteID string) (RemoteRecord[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.items[remoteID]
	if !ok {
		return RemoteRecord[T]{}, false
	}
	return *rec, true
}

func (m *mockRemote[T]) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *mockRemote[T]) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRemote[T]) setOffline(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = v
}

// --- Mock Connectivity Gate --------------------------------------------------

type mockGate struct {
	up atomic.Bool
}

func newMockGate(up bool) *mockGate {
	g := &mockGate{}
	g.up.Store(up)
	return g
}

func (g *mockGate) IsAvailable(context.Context) bool { return g.up.Load() }

// --- Mock Syncer -------------------------------------------------------------

type mockSyncer struct {
	name    string
	pending int
	passErr error

	calls   atomic.Int32
	release chan struct{} // when non-nil, Pass blocks until it is closed
	started chan struct{}
}

func (s *mockSyncer) Name() string { return s.name }

func (s *mockSyncer) Pass(context.Context) (Stats, error) {
	s.calls.Add(1)
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		<-s.release
	}
	if s.passErr != nil {
		return Stats{Failed: 1}, s.passErr
	}
	return Stats{Pushed: 1}, nil
}

func (s *mockSyncer) PendingCount(context.Context) (int, error) {
	if s.pending < 0 {
		return 0, errors.New("store closed")
	}
	return s.pending, nil
}

func (m *mockRemote[T]) softDelete(remoteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.items[remoteID]; ok {
		rec.Deleted = true
		rec.LastModified = m.tick()
	}
}

func (m *mockRemote[T]) edit(remoteID string, fn func(*T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.items[remoteID]; ok {
		fn(&rec.Payload)
		rec.LastModified = m.tick()
	}
}
