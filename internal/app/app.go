// Package app wires configuration, the local database, the remote clients
// and the sync engine together. Every CLI command goes through [New].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/njoerd114/offsync/internal/config"
	"github.com/njoerd114/offsync/internal/connectivity"
	"github.com/njoerd114/offsync/internal/localstore"
	"github.com/njoerd114/offsync/internal/model"
	"github.com/njoerd114/offsync/internal/remote"
	syncp "github.com/njoerd114/offsync/internal/sync"
)

// Option configures [New].
type Option func(*options)

type options struct {
	gate       syncp.ConnectivityGate
	hc         *http.Client
	collection []syncp.Option
}

// WithGate replaces the HTTP health probe.
func WithGate(g syncp.ConnectivityGate) Option {
	return func(o *options) { o.gate = g }
}

// WithOffline keeps every command local: no probe, no opportunistic push
// and no sync pass reaches the network.
func WithOffline() Option {
	return func(o *options) { o.gate = connectivity.Static(false) }
}

// WithHTTPClient sets the HTTP client used by the remote clients.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.hc = hc }
}

// WithCollectionOptions passes extra options to every collection.
func WithCollectionOptions(opts ...syncp.Option) Option {
	return func(o *options) { o.collection = append(o.collection, opts...) }
}

// App holds the wired components. Collections that are not enabled in the
// configuration are nil.
type App struct {
	Config *config.Config
	Engine *syncp.Engine
	Gate   syncp.ConnectivityGate

	Messages        *syncp.Collection[model.Message]
	Tasks           *syncp.Collection[model.Task]
	Documents       *syncp.Collection[model.Document]
	Folders         *syncp.Collection[model.Folder]
	TeamMemberships *syncp.Collection[model.TeamMembership]
	Invitations     *syncp.Collection[model.Invitation]
	Reactions       *syncp.Collection[model.Reaction]
	ReadReceipts    *syncp.Collection[model.ReadReceipt]

	db      *localstore.DB
	log     *slog.Logger
	o       options
	syncers []syncp.Syncer
	stores  map[string]recordCounter
}

type recordCounter interface {
	Count(ctx context.Context) (int, error)
}

// New opens the local database and builds one collection per enabled
// entity kind plus the engine driving them. Close releases the database.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.gate == nil {
		o.gate = connectivity.NewProbe(cfg.RemoteURL, logger, connectivity.WithTimeout(cfg.ProbeTimeout))
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		var err error
		if dbPath, err = localstore.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolving local DB path: %w", err)
		}
	}
	db, err := localstore.Open(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening local DB at %q: %w", dbPath, err)
	}
	logger.Debug("local DB opened", "path", dbPath)

	a := &App{Config: cfg, Gate: o.gate, db: db, log: logger, o: o, stores: make(map[string]recordCounter)}

	enabled := make(map[string]bool)
	for _, name := range cfg.EnabledCollections() {
		enabled[name] = true
	}
	if enabled[model.CollectionMessages] {
		a.Messages = register[model.Message](a, model.CollectionMessages)
	}
	if enabled[model.CollectionTasks] {
		a.Tasks = register[model.Task](a, model.CollectionTasks)
	}
	if enabled[model.CollectionDocuments] {
		a.Documents = register[model.Document](a, model.CollectionDocuments)
	}
	if enabled[model.CollectionFolders] {
		a.Folders = register[model.Folder](a, model.CollectionFolders)
	}
	if enabled[model.CollectionTeamMemberships] {
		a.TeamMemberships = register[model.TeamMembership](a, model.CollectionTeamMemberships)
	}
	if enabled[model.CollectionInvitations] {
		a.Invitations = register[model.Invitation](a, model.CollectionInvitations)
	}
	if enabled[model.CollectionReactions] {
		a.Reactions = register[model.Reaction](a, model.CollectionReactions)
	}
	if enabled[model.CollectionReadReceipts] {
		a.ReadReceipts = register[model.ReadReceipt](a, model.CollectionReadReceipts)
	}

	a.Engine, err = syncp.NewEngine(a.syncers, o.gate, cfg.PollInterval, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("building sync engine: %w", err)
	}
	return a, nil
}

// register builds the store, remote client and collection for one entity
// kind and adds it to the engine's set.
func register[T syncp.Payload[T]](a *App, name string) *syncp.Collection[T] {
	var clientOpts []remote.Option
	if a.o.hc != nil {
		clientOpts = append(clientOpts, remote.WithHTTPClient(a.o.hc))
	}
	client := remote.NewClient[T](a.Config.RemoteURL, a.Config.Token, name, a.log, clientOpts...)
	store := localstore.NewStore[T](a.db, name)
	a.stores[name] = store

	opts := []syncp.Option{
		syncp.WithPageSize(a.Config.PageSize),
		syncp.WithAuthorizer(syncp.RequireOwner),
	}
	opts = append(opts, a.o.collection...)

	c := syncp.NewCollection[T](name, store, client, a.Gate, a.log, opts...)
	a.syncers = append(a.syncers, c)
	return c
}

// Context returns ctx carrying the configured actor, for mutations.
func (a *App) Context(ctx context.Context) context.Context {
	return syncp.WithActor(ctx, a.Config.ActorID)
}

// RecordCounts returns how many local records each enabled collection
// holds, soft-deleted ones awaiting their remote delete included.
func (a *App) RecordCounts(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(a.stores))
	for name, s := range a.stores {
		n, err := s.Count(ctx)
		if err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}

// Close waits for sync passes still running in the background, then
// releases the local database.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Wait()
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("closing local DB: %w", err)
	}
	return nil
}

// ErrDisabled is returned by commands that need a collection the
// configuration leaves out.
var ErrDisabled = errors.New("collection not enabled in config")

// RequireTasks returns the tasks collection or ErrDisabled.
func (a *App) RequireTasks() (*syncp.Collection[model.Task], error) {
	if a.Tasks == nil {
		return nil, fmt.Errorf("%s: %w", model.CollectionTasks, ErrDisabled)
	}
	return a.Tasks, nil
}
