package docsedit

import (
	"context"
	"log/slog"

	"google.golang.org/api/docs/v1"
)

const (
	DefaultChunkSize     = 50
	DefaultMaxOperations = 500
)

// Limits bound a single batch submission.
type Limits struct {
	ChunkSize     int
	MaxOperations int
}

// DefaultLimits are the service-side ceilings: 50 requests per update call
// and 500 operations per batch.
var DefaultLimits = Limits{ChunkSize: DefaultChunkSize, MaxOperations: DefaultMaxOperations}

// normalized clamps configured limits into the ranges the service accepts.
func (l Limits) normalized() Limits {
	if l.ChunkSize <= 0 || l.ChunkSize > DefaultChunkSize {
		l.ChunkSize = DefaultChunkSize
	}
	if l.MaxOperations <= 0 || l.MaxOperations > DefaultMaxOperations {
		l.MaxOperations = DefaultMaxOperations
	}
	return l
}

// BatchUpdater submits one chunk of requests to the document service.
type BatchUpdater interface {
	BatchUpdate(ctx context.Context, documentID string, reqs []*docs.Request) error
}

// ExecutionResult reports how far a submission got. When Err is set the
// first ChunksSucceeded chunks were applied and nothing after them was sent.
type ExecutionResult struct {
	Requests        int
	ChunksSucceeded int
	ChunksTotal     int
	Err             error
}

// Partial reports a failure after at least one chunk was applied.
func (r ExecutionResult) Partial() bool {
	return r.Err != nil && r.ChunksSucceeded > 0
}

// Chunk splits reqs into consecutive groups of at most size, preserving order.
func Chunk(reqs []*docs.Request, size int) [][]*docs.Request {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]*docs.Request
	for start := 0; start < len(reqs); start += size {
		end := start + size
		if end > len(reqs) {
			end = len(reqs)
		}
		out = append(out, reqs[start:end])
	}
	return out
}

// Execute submits reqs in order, one chunk at a time, and stops at the
// first chunk the service rejects. Applied chunks are not rolled back.
func Execute(ctx context.Context, documentID string, reqs []*docs.Request, u BatchUpdater, limits Limits) ExecutionResult {
	limits = limits.normalized()
	res := ExecutionResult{Requests: len(reqs)}
	if len(reqs) > limits.MaxOperations {
		res.Err = validationf("batch has %d requests; the limit is %d", len(reqs), limits.MaxOperations)
		return res
	}

	chunks := Chunk(reqs, limits.ChunkSize)
	res.ChunksTotal = len(chunks)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		if err := u.BatchUpdate(ctx, documentID, chunk); err != nil {
			slog.Debug("batch chunk failed", "document", documentID, "chunk", i+1, "of", len(chunks), "err", err)
			res.Err = &RemoteServiceError{DocumentID: documentID, Chunk: i + 1, Err: err}
			return res
		}
		res.ChunksSucceeded++
		slog.Debug("batch chunk applied", "document", documentID, "chunk", i+1, "of", len(chunks), "requests", len(chunk))
	}
	return res
}
