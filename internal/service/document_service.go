package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"blockdoc/internal/docstore"
	"blockdoc/internal/domain"
	"blockdoc/internal/engine"
	"blockdoc/internal/policy"
)

// ─────────────────────────────────────────────────────────────
// DocumentService: open documents, persistence and history
// ─────────────────────────────────────────────────────────────

// Session is one open document with its engine and local undo history.
type Session struct {
	Doc    *docstore.Doc
	Engine *engine.Engine
	Undo   *docstore.UndoManager

	stopObserve func()
}

// CheckpointResult reports a saved snapshot.
type CheckpointResult struct {
	DocID   string `json:"docId"`
	Version uint64 `json:"version"`
	Pruned  int64  `json:"pruned"`
}

// DocumentService keeps open documents in memory. Every committed change is
// appended to the change log and emitted; checkpoints fold the log into a
// snapshot.
type DocumentService struct {
	snapshots domain.SnapshotStore
	changes   domain.ChangeLog // nil: snapshots only
	tbl       *policy.Table
	emitter   EventEmitter
	log       zerolog.Logger
	rec       engine.Recorder
	undoLimit int

	mu       sync.Mutex
	sessions map[string]*Session

	// busy holds the documents with a checkpoint in flight; a second
	// checkpoint of the same document is refused, not queued.
	busyMu    sync.Mutex
	busy      map[string]bool
	inflight  sync.WaitGroup
	cronSched *cron.Cron
}

type Option func(*DocumentService)

// WithChangeLog persists every change between checkpoints.
func WithChangeLog(changes domain.ChangeLog) Option {
	return func(s *DocumentService) { s.changes = changes }
}

func WithRecorder(rec engine.Recorder) Option {
	return func(s *DocumentService) { s.rec = rec }
}

func WithUndoLimit(n int) Option {
	return func(s *DocumentService) { s.undoLimit = n }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *DocumentService) { s.log = log.With().Str("component", "documents").Logger() }
}

// NewDocumentService creates a DocumentService ready for use.
func NewDocumentService(snapshots domain.SnapshotStore, tbl *policy.Table, emitter EventEmitter, opts ...Option) *DocumentService {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	s := &DocumentService{
		snapshots: snapshots,
		tbl:       tbl,
		emitter:   emitter,
		log:       zerolog.Nop(),
		sessions:  make(map[string]*Session),
		busy:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DocumentService) Table() *policy.Table { return s.tbl }

// ── Sessions ───────────────────────────────────────────────

// Open returns the session for docID, loading it from the latest snapshot
// plus the change log, or creating an empty document when none is stored.
func (s *DocumentService) Open(ctx context.Context, docID string) (*Session, error) {
	if docID == "" {
		return nil, fmt.Errorf("open document: empty id: %w", domain.ErrInvalidOperation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[docID]; ok {
		return sess, nil
	}

	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := docstore.Validate(doc.Snapshot(), s.tbl.TextBearing); err != nil {
		return nil, fmt.Errorf("open document %s: %w", docID, err)
	}

	engOpts := []engine.Option{engine.WithLogger(s.log.With().Str("doc", docID).Logger())}
	if s.rec != nil {
		engOpts = append(engOpts, engine.WithRecorder(s.rec))
	}
	sess := &Session{
		Doc:    doc,
		Engine: engine.New(doc, s.tbl, engOpts...),
		Undo:   docstore.NewUndoManager(doc, s.undoLimit),
	}
	sess.stopObserve = doc.Observe(s.persist)
	s.sessions[docID] = sess
	s.log.Info().Str("doc", docID).Uint64("version", doc.Version()).Msg("document opened")
	return sess, nil
}

func (s *DocumentService) load(ctx context.Context, docID string) (*docstore.Doc, error) {
	snap, err := s.snapshots.LoadSnapshot(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) {
		doc := docstore.NewDocument(docID)
		if err := s.snapshots.SaveSnapshot(ctx, doc.Snapshot()); err != nil {
			return nil, fmt.Errorf("create document %s: %w", docID, err)
		}
		return doc, nil
	}
	if err != nil {
		return nil, err
	}

	doc := docstore.Load(snap)
	if s.changes == nil {
		return doc, nil
	}
	pending, err := s.changes.ChangesSince(ctx, docID, snap.Version)
	if err != nil {
		return nil, err
	}
	for _, c := range pending {
		if c.Version != doc.Version()+1 {
			return nil, fmt.Errorf("replay %s: gap before version %d (at %d): %w", docID, c.Version, doc.Version(), domain.ErrInvalidOperation)
		}
		if _, err := doc.Commit(c.Name, domain.OriginReplay, c.Ops); err != nil {
			return nil, fmt.Errorf("replay %s v%d: %w", docID, c.Version, err)
		}
	}
	if len(pending) > 0 {
		s.log.Debug().Str("doc", docID).Int("changes", len(pending)).Msg("replayed change log")
	}
	return doc, nil
}

// persist runs for every committed change, in commit order.
func (s *DocumentService) persist(c *domain.Change) {
	ctx := context.Background()
	if s.changes != nil && c.Origin != domain.OriginReplay {
		if err := s.changes.AppendChange(ctx, c); err != nil {
			s.log.Error().Err(err).Str("doc", c.DocID).Uint64("version", c.Version).Msg("append change failed")
		}
	}
	s.emitter.Emit(ctx, EventDocumentChanged, c)
}

// Session returns an already open session.
func (s *DocumentService) Session(docID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[docID]
	return sess, ok
}

// Snapshot returns the current state of a document, opening it if needed.
func (s *DocumentService) Snapshot(ctx context.Context, docID string) (*domain.Snapshot, error) {
	sess, err := s.Open(ctx, docID)
	if err != nil {
		return nil, err
	}
	return sess.Doc.Snapshot(), nil
}

// List returns the stored documents.
func (s *DocumentService) List(ctx context.Context) ([]domain.DocumentInfo, error) {
	return s.snapshots.ListDocuments(ctx)
}

// Delete closes a document and removes everything stored for it.
func (s *DocumentService) Delete(ctx context.Context, docID string) error {
	s.mu.Lock()
	if sess, ok := s.sessions[docID]; ok {
		sess.close()
		delete(s.sessions, docID)
	}
	s.mu.Unlock()

	if err := s.snapshots.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	s.emitter.Emit(ctx, EventDocumentDeleted, docID)
	return nil
}

func (sess *Session) close() {
	sess.stopObserve()
	sess.Undo.Close()
}

// ── Remote changes and history ─────────────────────────────

// ApplyRemote commits ops produced by another replica. The ops must fit the
// current state and leave a valid tree, or nothing is applied or emitted.
func (s *DocumentService) ApplyRemote(ctx context.Context, docID, name string, ops []domain.Op) (*domain.Change, error) {
	sess, err := s.Open(ctx, docID)
	if err != nil {
		return nil, err
	}
	return sess.Doc.CommitChecked(name, domain.OriginRemote, ops, func(snap *domain.Snapshot) error {
		if err := docstore.Validate(snap, s.tbl.TextBearing); err != nil {
			return fmt.Errorf("remote change %s: %w: %v", name, domain.ErrInvalidOperation, err)
		}
		return nil
	})
}

// Undo reverts the last local operation. It returns nil when there is
// nothing to undo.
func (s *DocumentService) Undo(ctx context.Context, docID string) (*domain.Change, error) {
	sess, err := s.Open(ctx, docID)
	if err != nil {
		return nil, err
	}
	return sess.Undo.Undo()
}

// Redo re-applies the last undone operation.
func (s *DocumentService) Redo(ctx context.Context, docID string) (*domain.Change, error) {
	sess, err := s.Open(ctx, docID)
	if err != nil {
		return nil, err
	}
	return sess.Undo.Redo()
}

// ── Checkpoints ────────────────────────────────────────────

// ErrCheckpointRunning is returned when a checkpoint of the same document is
// already in flight.
var ErrCheckpointRunning = errors.New("checkpoint already running")

// Checkpoint saves a snapshot of an open document and prunes the change log
// up to its version.
func (s *DocumentService) Checkpoint(ctx context.Context, docID string) (CheckpointResult, error) {
	sess, ok := s.Session(docID)
	if !ok {
		return CheckpointResult{}, fmt.Errorf("checkpoint %s: not open: %w", docID, domain.ErrNotFound)
	}
	if !s.beginCheckpoint(docID) {
		return CheckpointResult{}, fmt.Errorf("checkpoint %s: %w", docID, ErrCheckpointRunning)
	}
	defer s.endCheckpoint(docID)

	snap := sess.Doc.Snapshot()
	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return CheckpointResult{}, err
	}
	res := CheckpointResult{DocID: docID, Version: snap.Version}
	if s.changes != nil {
		n, err := s.changes.PruneChanges(ctx, docID, snap.Version)
		if err != nil {
			return res, err
		}
		res.Pruned = n
	}
	s.log.Info().Str("doc", docID).Uint64("version", res.Version).Int64("pruned", res.Pruned).Msg("checkpoint saved")
	s.emitter.Emit(ctx, EventDocumentCheckpointed, res)
	return res, nil
}

func (s *DocumentService) beginCheckpoint(docID string) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if s.busy[docID] {
		return false
	}
	s.busy[docID] = true
	s.inflight.Add(1)
	return true
}

func (s *DocumentService) endCheckpoint(docID string) {
	s.busyMu.Lock()
	delete(s.busy, docID)
	s.busyMu.Unlock()
	s.inflight.Done()
}

// waitCheckpoints returns once no checkpoint is in flight or ctx is done.
func (s *DocumentService) waitCheckpoints(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// CheckpointAll checkpoints every open document. Busy documents are skipped.
func (s *DocumentService) CheckpointAll(ctx context.Context) ([]CheckpointResult, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var out []CheckpointResult
	var errs []error
	for _, id := range ids {
		res, err := s.Checkpoint(ctx, id)
		switch {
		case errors.Is(err, ErrCheckpointRunning), errors.Is(err, domain.ErrNotFound):
		case err != nil:
			errs = append(errs, err)
		default:
			out = append(out, res)
		}
	}
	return out, errors.Join(errs...)
}

// StartScheduler runs CheckpointAll on a cron spec (e.g. "@every 5m").
func (s *DocumentService) StartScheduler(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		res, err := s.CheckpointAll(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("scheduled checkpoint failed")
			return
		}
		s.log.Debug().Int("documents", len(res)).Msg("scheduled checkpoint")
	})
	if err != nil {
		return fmt.Errorf("invalid checkpoint schedule %q: %w", spec, err)
	}
	c.Start()
	s.cronSched = c
	s.log.Info().Str("spec", spec).Msg("checkpoint scheduler started")
	return nil
}

// Close stops the scheduler, checkpoints and closes every open document.
func (s *DocumentService) Close(ctx context.Context) error {
	if s.cronSched != nil {
		<-s.cronSched.Stop().Done()
		s.cronSched = nil
	}
	s.waitCheckpoints(ctx)
	_, err := s.CheckpointAll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.close()
		delete(s.sessions, id)
	}
	return err
}
