package docsedit

import (
	"context"
	"log/slog"

	"google.golang.org/api/docs/v1"
)

// SnapshotFetcher loads the current content of a document.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, documentID string) (*Snapshot, error)
}

// DocumentService is what the engine needs from the remote side.
type DocumentService interface {
	SnapshotFetcher
	BatchUpdater
}

// Engine applies batches to documents: it validates, fetches a snapshot
// when a target needs one, translates and submits in chunks. Batches for
// the same document run one at a time.
type Engine struct {
	svc    DocumentService
	limits Limits
	locks  *docLocks
	images *ImageChecker
}

type EngineOption func(*Engine)

func WithLimits(l Limits) EngineOption {
	return func(e *Engine) { e.limits = l }
}

// WithImageChecker checks image URLs once the whole batch has translated,
// right before anything is sent.
func WithImageChecker(c *ImageChecker) EngineOption {
	return func(e *Engine) { e.images = c }
}

func NewEngine(svc DocumentService, opts ...EngineOption) *Engine {
	e := &Engine{svc: svc, limits: DefaultLimits, locks: newDocLocks()}
	for _, opt := range opts {
		opt(e)
	}
	e.limits = e.limits.normalized()
	return e
}

func (e *Engine) Limits() Limits { return e.limits }

// Apply runs ops against documentID. Validation and resolution failures are
// returned in Err with ChunksTotal == 0 and nothing sent.
func (e *Engine) Apply(ctx context.Context, documentID string, ops []Operation) ExecutionResult {
	if documentID == "" {
		return ExecutionResult{Err: validationf("document id is required")}
	}
	if len(ops) == 0 {
		return ExecutionResult{}
	}
	if len(ops) > e.limits.MaxOperations {
		return ExecutionResult{Err: validationf("batch has %d operations; the limit is %d", len(ops), e.limits.MaxOperations)}
	}

	release, err := e.locks.acquire(ctx, documentID)
	if err != nil {
		return ExecutionResult{Err: err}
	}
	defer release()

	var snap *Snapshot
	if NeedsSnapshot(ops) {
		snap, err = e.svc.FetchSnapshot(ctx, documentID)
		if err != nil {
			return ExecutionResult{Err: &RemoteServiceError{DocumentID: documentID, Err: err}}
		}
	}

	reqs, err := Translate(ops, snap)
	if err != nil {
		return ExecutionResult{Err: err}
	}
	if err := e.images.Check(ctx, ops); err != nil {
		return ExecutionResult{Err: err}
	}

	slog.Debug("applying batch", "document", documentID, "operations", len(ops), "requests", len(reqs))
	return Execute(ctx, documentID, reqs, e.svc, e.limits)
}

// Snapshot fetches the document under the same per-document lock batches use.
func (e *Engine) Snapshot(ctx context.Context, documentID string) (*Snapshot, error) {
	release, err := e.locks.acquire(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer release()
	return e.svc.FetchSnapshot(ctx, documentID)
}

// Preview translates ops against a fresh snapshot without submitting them and
// returns the requests together with the simulated text change of tabID.
func (e *Engine) Preview(ctx context.Context, documentID, tabID string, ops []Operation) ([]*docs.Request, Preview, error) {
	if documentID == "" {
		return nil, Preview{}, validationf("document id is required")
	}
	if len(ops) > e.limits.MaxOperations {
		return nil, Preview{}, validationf("batch has %d operations; the limit is %d", len(ops), e.limits.MaxOperations)
	}
	snap, err := e.Snapshot(ctx, documentID)
	if err != nil {
		return nil, Preview{}, &RemoteServiceError{DocumentID: documentID, Err: err}
	}
	reqs, err := Translate(ops, snap)
	if err != nil {
		return nil, Preview{}, err
	}
	p, err := PreviewRequests(snap, tabID, reqs)
	if err != nil {
		return nil, Preview{}, err
	}
	return reqs, p, nil
}

// AppendText inserts text at the end of tabID. The end index is read from a
// snapshot taken under the document lock, so a concurrent batch cannot move it.
// With newline set, a line break is prepended when the tab is not empty.
func (e *Engine) AppendText(ctx context.Context, documentID, tabID, text string, newline bool) ExecutionResult {
	if documentID == "" {
		return ExecutionResult{Err: validationf("document id is required")}
	}

	release, err := e.locks.acquire(ctx, documentID)
	if err != nil {
		return ExecutionResult{Err: err}
	}
	defer release()

	snap, err := e.svc.FetchSnapshot(ctx, documentID)
	if err != nil {
		return ExecutionResult{Err: &RemoteServiceError{DocumentID: documentID, Err: err}}
	}
	tab, err := snap.Tab(tabID)
	if err != nil {
		return ExecutionResult{Err: err}
	}

	at := max(tab.EndIndex-1, 1)
	if newline && at > 1 {
		text = "\n" + text
	}
	if text == "" {
		return ExecutionResult{}
	}

	reqs, err := TranslateOne(InsertText{Text: text, Index: at, TabID: tab.ID}, snap)
	if err != nil {
		return ExecutionResult{Err: err}
	}
	return Execute(ctx, documentID, reqs, e.svc, e.limits)
}
