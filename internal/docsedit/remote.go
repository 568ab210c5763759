package docsedit

import (
	"context"
	"fmt"

	"google.golang.org/api/docs/v1"
)

// Remote adapts a Docs API client to DocumentService.
type Remote struct {
	svc *docs.Service
}

func NewRemote(svc *docs.Service) *Remote {
	return &Remote{svc: svc}
}

func (r *Remote) FetchSnapshot(ctx context.Context, documentID string) (*Snapshot, error) {
	doc, err := r.svc.Documents.Get(documentID).
		IncludeTabsContent(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: empty response", documentID)
	}
	return NewSnapshot(doc), nil
}

func (r *Remote) BatchUpdate(ctx context.Context, documentID string, reqs []*docs.Request) error {
	_, err := r.svc.Documents.BatchUpdate(documentID, &docs.BatchUpdateDocumentRequest{Requests: reqs}).
		Context(ctx).
		Do()
	return err
}
