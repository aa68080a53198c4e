package confstore

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/objectid"
	"github.com/ValentinKolb/dCtl/lib/stats"
	"github.com/ValentinKolb/dCtl/lib/store"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("confstore")

// --------------------------------------------------------------------------
// Propagation
// --------------------------------------------------------------------------

// Propagator announces a committed revision to the other control plane members
type Propagator interface {
	Publish(ctx context.Context, revision uint64) error
}

// PropagatorFunc adapts a function to the Propagator interface
type PropagatorFunc func(ctx context.Context, revision uint64) error

func (f PropagatorFunc) Publish(ctx context.Context, revision uint64) error {
	return f(ctx, revision)
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Options configures a Store
type Options struct {
	// Backend is the durable key space (lstore or dstore)
	Backend store.IStore
	// Propagator is optional, nil disables propagation
	Propagator Propagator
	// ServerSecret identifies the cluster member record of this process
	ServerSecret string
	// IDs overrides the id generator
	IDs *objectid.Generator
	// PublishTimeout bounds a single propagation (default 10s)
	PublishTimeout time.Duration
}

// Store is the in-memory mirror of the configuration. It is the only writer
// of configuration documents: every change goes through MakeChanges, is
// persisted as one durable batch and then published as a new immutable Data.
type Store struct {
	backend        store.IStore
	propagator     Propagator
	secret         string
	ids            *objectid.Generator
	publishTimeout time.Duration

	data atomic.Pointer[Data] // nil until the initial load finished
	mu   sync.Mutex           // single writer
}

// New creates a store. It is not ready before Load succeeded.
func New(opts Options) *Store {
	if opts.IDs == nil {
		opts.IDs = objectid.NewGenerator()
	}
	if opts.PublishTimeout == 0 {
		opts.PublishTimeout = 10 * time.Second
	}
	return &Store{
		backend:        opts.Backend,
		propagator:     opts.Propagator,
		secret:         opts.ServerSecret,
		ids:            opts.IDs,
		publishTimeout: opts.PublishTimeout,
	}
}

// GenerateID returns a new document id. Ids can be used as references
// inside the batch that inserts the referenced document.
func (s *Store) GenerateID() string {
	return s.ids.New()
}

// ServerSecret returns the secret identifying this server
func (s *Store) ServerSecret() string {
	return s.secret
}

// IsFinishedInitialLoad reports whether Load succeeded at least once
func (s *Store) IsFinishedInitialLoad() bool {
	return s.data.Load() != nil
}

// Data returns the current snapshot or a NOT_READY error before the initial load
func (s *Store) Data() (*Data, error) {
	d := s.data.Load()
	if d == nil {
		return nil, errs.New(errs.NotReady, "confstore.Data", "initial load not finished")
	}
	return d, nil
}

// ResolveRole returns the current role of account on system
func (s *Store) ResolveRole(account, system string) (string, error) {
	d, err := s.Data()
	if err != nil {
		return "", err
	}
	return d.RoleOf(account, system), nil
}

// LocalCluster returns the member record owned by this server, if any
func (s *Store) LocalCluster() (*model.Cluster, bool) {
	d := s.data.Load()
	if d == nil || s.secret == "" {
		return nil, false
	}
	return d.ClusterBySecret(s.secret)
}

// --------------------------------------------------------------------------
// Loading
// --------------------------------------------------------------------------

// Load reads all documents from the backend and marks the store ready
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, "confstore.Load")
}

// Reload re-reads the backend, e.g. after a peer announced a new revision.
// A snapshot older than the current one is never published.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats.StoreReload()
	return s.loadLocked(ctx, "confstore.Reload")
}

// ReloadIfBehind reloads only when revision is newer than the current snapshot
func (s *Store) ReloadIfBehind(ctx context.Context, revision uint64) error {
	if d := s.data.Load(); d != nil && d.revision >= revision {
		return nil
	}
	return s.Reload(ctx)
}

func (s *Store) loadLocked(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Internal, op, err)
	}
	start := time.Now()

	// the revision is read first, a concurrent foreign commit can only make
	// the documents newer than the revision, never older
	rev, err := s.backend.Revision()
	if err != nil {
		return errs.Wrap(errs.CodeOf(err), op, err)
	}
	entries, err := s.backend.Scan(docPrefix)
	if err != nil {
		return errs.Wrap(errs.CodeOf(err), op, err)
	}

	var problems *multierror.Error
	next := newData(rev)
	size := 0
	for _, e := range entries {
		size += len(e.Value)
		coll, id, ok := splitDocKey(e.Key)
		if !ok {
			problems = multierror.Append(problems, errs.New(errs.Internal, op, "malformed key %q", e.Key))
			continue
		}
		doc, err := model.Decode(coll, e.Value)
		if err != nil {
			problems = multierror.Append(problems, errs.Wrap(errs.Internal, op, err))
			continue
		}
		if doc.GetID() != id {
			problems = multierror.Append(problems, errs.New(errs.Internal, op, "key %q holds document %s", e.Key, doc.GetID()))
			continue
		}
		next.put(doc)
	}
	if problems.ErrorOrNil() != nil {
		// a single broken document must not block the whole control plane
		log.Errorf("%s: skipped %d documents: %v", op, len(problems.Errors), problems)
	}

	if cur := s.data.Load(); cur != nil && cur.revision > rev {
		log.Warningf("%s: backend revision %d is older than loaded revision %d, keeping current", op, rev, cur.revision)
		return nil
	}
	s.data.Store(next)
	log.Infof("%s: loaded %d documents (%s) at revision %d in %v", op, len(entries), humanize.Bytes(uint64(size)), rev, time.Since(start))
	return nil
}

func splitDocKey(key string) (model.Collection, string, bool) {
	rest, ok := strings.CutPrefix(key, docPrefix)
	if !ok {
		return "", "", false
	}
	coll, id, ok := strings.Cut(rest, "/")
	if !ok || !model.Collection(coll).Valid() || id == "" {
		return "", "", false
	}
	return model.Collection(coll), id, true
}

// --------------------------------------------------------------------------
// Commits
// --------------------------------------------------------------------------

// MakeChanges applies ch against the current revision. See MakeChangesAt.
func (s *Store) MakeChanges(ctx context.Context, ch Changes) (uint64, error) {
	d, err := s.Data()
	if err != nil {
		return 0, err
	}
	return s.commit(ctx, d.revision, ch, "confstore.MakeChanges")
}

// MakeChangesAt applies ch atomically if the store is still at revision.
//
// The batch is validated against a private copy of the snapshot, written to
// the backend as one compare-and-swap batch and then published. Errors:
//   - NOT_READY before the initial load
//   - NOT_FOUND when an update or remove names an unknown id (and nothing else is wrong)
//   - VALIDATION for any other invalid sub-operation
//   - CONFLICT when revision is stale or another writer committed first
//
// On error nothing of the batch is visible. The returned revision is the new one.
func (s *Store) MakeChangesAt(ctx context.Context, revision uint64, ch Changes) (uint64, error) {
	return s.commit(ctx, revision, ch, "confstore.MakeChangesAt")
}

func (s *Store) commit(ctx context.Context, revision uint64, ch Changes, op string) (uint64, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(errs.Internal, op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.data.Load()
	if cur == nil {
		return 0, errs.New(errs.NotReady, op, "initial load not finished")
	}
	if cur.revision != revision {
		stats.StoreCommit(start, true, false)
		if revision > cur.revision {
			// the caller has seen a newer revision than we have
			s.reloadAsync()
		}
		return 0, errs.New(errs.Conflict, op, "stale revision %d, current is %d", revision, cur.revision)
	}
	if ch.Empty() {
		return cur.revision, nil
	}

	t := newTxn(cur, s.ids.New)
	t.apply(ch)
	if t.invalid != nil {
		stats.StoreCommit(start, false, true)
		all := multierror.Append(t.invalid, t.notFound.WrappedErrors()...)
		return 0, &errs.Error{Code: errs.Validation, Op: op, Err: all}
	}
	if t.notFound != nil {
		stats.StoreCommit(start, false, true)
		return 0, &errs.Error{Code: errs.NotFound, Op: op, Err: t.notFound}
	}

	mutations, err := t.mutations()
	if err != nil {
		return 0, errs.Wrap(errs.Internal, op, err)
	}

	newRev, err := s.backend.Commit(store.WriteBatch{ExpectedRevision: cur.revision, Mutations: mutations})
	if err != nil {
		if errs.CodeOf(err) == errs.Conflict {
			// someone else wrote to the backend, catch up for the retry
			stats.StoreCommit(start, true, false)
			s.reloadAsync()
			return 0, &errs.Error{Code: errs.Conflict, Op: op, Err: err}
		}
		stats.StoreCommit(start, false, true)
		return 0, errs.Wrap(errs.CodeOf(err), op, err)
	}

	t.next.revision = newRev
	s.data.Store(t.next)
	stats.StoreCommit(start, false, false)
	log.Debugf("%s: committed %d mutations, revision %d -> %d", op, len(mutations), cur.revision, newRev)

	s.publishAsync(newRev)
	return newRev, nil
}

func (s *Store) reloadAsync() {
	go func() {
		if err := s.Reload(context.Background()); err != nil {
			log.Errorf("background reload failed: %v", err)
		}
	}()
}

func (s *Store) publishAsync(revision uint64) {
	if s.propagator == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
		defer cancel()
		if err := s.propagator.Publish(ctx, revision); err != nil {
			log.Warningf("propagating revision %d failed: %v", revision, err)
		}
	}()
}

// --------------------------------------------------------------------------
// Retry
// --------------------------------------------------------------------------

// DefaultUpdateAttempts bounds Update
const DefaultUpdateAttempts = 5

// Update computes a batch from the current snapshot and commits it at that
// snapshot's revision. On CONFLICT the store catches up and fn runs again
// against the newer snapshot, at most DefaultUpdateAttempts times. A batch
// that is Empty commits nothing.
func (s *Store) Update(ctx context.Context, fn func(d *Data) (Changes, error)) (uint64, error) {
	var lastErr error
	for attempt := 0; attempt < DefaultUpdateAttempts; attempt++ {
		if attempt > 0 {
			if err := s.Reload(ctx); err != nil {
				return 0, err
			}
		}
		d, err := s.Data()
		if err != nil {
			return 0, err
		}
		ch, err := fn(d)
		if err != nil {
			return 0, err
		}
		rev, err := s.MakeChangesAt(ctx, d.revision, ch)
		if !errs.IsRetryable(err) {
			return rev, err
		}
		lastErr = err
		log.Debugf("confstore.Update: attempt %d conflicted: %v", attempt+1, err)
	}
	return 0, lastErr
}
