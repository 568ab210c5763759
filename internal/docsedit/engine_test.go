package docsedit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

type fakeService struct {
	recordingUpdater
	doc     *docs.Document
	fetches atomic.Int32

	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
}

func (f *fakeService) FetchSnapshot(context.Context, string) (*Snapshot, error) {
	f.fetches.Add(1)
	return NewSnapshot(f.doc), nil
}

func (f *fakeService) BatchUpdate(ctx context.Context, id string, reqs []*docs.Request) error {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.recordingUpdater.BatchUpdate(ctx, id, reqs)
}

func TestEngineApply_RejectsOversizedBatch(t *testing.T) {
	svc := &fakeService{doc: conclusionDoc()}
	e := NewEngine(svc)

	ops := make([]Operation, 501)
	for i := range ops {
		ops[i] = ApplyTextStyle{Target: TextSearch{Text: "Intro", Instance: 1}, Style: TextStyle{Bold: Some(true)}}
	}
	res := e.Apply(context.Background(), "doc1", ops)
	if !IsValidation(res.Err) {
		t.Fatalf("expected ValidationError, got %v", res.Err)
	}
	if svc.calls() != 0 || svc.fetches.Load() != 0 {
		t.Fatalf("no remote calls expected: updates=%d fetches=%d", svc.calls(), svc.fetches.Load())
	}
}

func TestEngineApply_FetchesOnlyWhenNeeded(t *testing.T) {
	svc := &fakeService{doc: conclusionDoc()}
	e := NewEngine(svc)

	res := e.Apply(context.Background(), "doc1", []Operation{
		InsertText{Text: "x", Index: 1},
		InsertPageBreak{Index: 3},
	})
	if res.Err != nil {
		t.Fatalf("Apply: %v", res.Err)
	}
	if svc.fetches.Load() != 0 {
		t.Fatalf("index-only batch should not fetch, fetches=%d", svc.fetches.Load())
	}

	res = e.Apply(context.Background(), "doc1", []Operation{
		ApplyTextStyle{Target: TextSearch{Text: "Conclusion", Instance: 3}, Style: TextStyle{Italic: Some(true)}},
	})
	if res.Err != nil {
		t.Fatalf("Apply: %v", res.Err)
	}
	if svc.fetches.Load() != 1 {
		t.Fatalf("fetches=%d", svc.fetches.Load())
	}
	last := svc.chunks[len(svc.chunks)-1][0].UpdateTextStyle.Range
	if last.StartIndex != 43 || last.EndIndex != 53 {
		t.Fatalf("range: %+v", last)
	}

	res = e.Apply(context.Background(), "doc1", []Operation{
		ApplyTextStyle{Target: ExplicitRange{1, 2}, Style: TextStyle{Bold: Some(true)}},
	})
	if res.Err != nil {
		t.Fatalf("Apply: %v", res.Err)
	}
	if svc.fetches.Load() != 2 {
		t.Fatalf("explicit range should fetch to check its end, fetches=%d", svc.fetches.Load())
	}
}

func TestEngineApply_RangePastEndSendsNothing(t *testing.T) {
	doc := &docs.Document{DocumentId: "doc1", Body: &docs.Body{Content: []*docs.StructuralElement{
		{EndIndex: 1, SectionBreak: &docs.SectionBreak{}},
		para(1, "abcde\n"),
	}}}

	cases := map[string]Operation{
		"style":  ApplyTextStyle{Target: ExplicitRange{1, 9999}, Style: TextStyle{Bold: Some(true)}},
		"delete": DeleteRange{Start: 2, End: 9999},
	}
	for name, last := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{doc: doc}
			e := NewEngine(svc)

			ops := make([]Operation, 0, 61)
			for range 60 {
				ops = append(ops, ApplyTextStyle{Target: ExplicitRange{1, 3}, Style: TextStyle{Bold: Some(true)}})
			}
			ops = append(ops, last)

			res := e.Apply(context.Background(), "doc1", ops)
			if !IsValidation(res.Err) {
				t.Fatalf("expected ValidationError, got %v", res.Err)
			}
			if idx, _ := FailedOperation(res.Err); idx != 60 {
				t.Fatalf("failed index %d", idx)
			}
			if svc.fetches.Load() != 1 || svc.calls() != 0 || res.ChunksTotal != 0 {
				t.Fatalf("fetches=%d updates=%d chunks=%d", svc.fetches.Load(), svc.calls(), res.ChunksTotal)
			}
		})
	}
}

func TestEngineApply_ChecksImagesAfterValidation(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		heads.Add(1)
		w.Header().Set("Content-Type", "image/png")
	}))
	defer srv.Close()

	svc := &fakeService{doc: conclusionDoc()}
	e := NewEngine(svc, WithImageChecker(NewImageChecker(srv.Client(), true)))
	ctx := context.Background()

	oversized := make([]Operation, 501)
	for i := range oversized {
		oversized[i] = InsertImage{URL: fmt.Sprintf("%s/%d.png", srv.URL, i), Index: 1}
	}
	if res := e.Apply(ctx, "doc1", oversized); !IsValidation(res.Err) {
		t.Fatalf("oversized: expected ValidationError, got %v", res.Err)
	}
	if heads.Load() != 0 {
		t.Fatalf("oversized batch sent %d HEAD requests", heads.Load())
	}

	invalid := []Operation{
		InsertImage{URL: srv.URL + "/a.png", Index: 1},
		DeleteRange{Start: 3, End: 2},
	}
	if res := e.Apply(ctx, "doc1", invalid); !IsValidation(res.Err) {
		t.Fatalf("invalid: expected ValidationError, got %v", res.Err)
	}
	if heads.Load() != 0 {
		t.Fatalf("invalid batch sent %d HEAD requests", heads.Load())
	}

	res := e.Apply(ctx, "doc1", invalid[:1])
	if res.Err != nil {
		t.Fatalf("Apply: %v", res.Err)
	}
	if heads.Load() != 1 || svc.calls() != 1 {
		t.Fatalf("heads=%d updates=%d", heads.Load(), svc.calls())
	}
}

func TestEngineApply_UnreachableImageSendsNothing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	svc := &fakeService{doc: conclusionDoc()}
	e := NewEngine(svc, WithImageChecker(NewImageChecker(srv.Client(), true)))

	res := e.Apply(context.Background(), "doc1", []Operation{
		InsertText{Text: "x", Index: 1},
		InsertImage{URL: srv.URL + "/gone.png", Index: 1},
	})
	if !IsValidation(res.Err) {
		t.Fatalf("expected ValidationError, got %v", res.Err)
	}
	if idx, _ := FailedOperation(res.Err); idx != 1 {
		t.Fatalf("failed index %d", idx)
	}
	if svc.calls() != 0 {
		t.Fatalf("updates=%d", svc.calls())
	}
}

func TestEngineApply_ChunksWithConfiguredLimits(t *testing.T) {
	svc := &fakeService{doc: conclusionDoc()}
	svc.failOn = 2
	e := NewEngine(svc, WithLimits(Limits{ChunkSize: 10, MaxOperations: 100}))

	ops := make([]Operation, 25)
	for i := range ops {
		ops[i] = InsertText{Text: "a", Index: 1}
	}
	res := e.Apply(context.Background(), "doc1", ops)
	if res.ChunksTotal != 3 || res.ChunksSucceeded != 1 || !res.Partial() {
		t.Fatalf("result: %+v", res)
	}
	if !IsRemote(res.Err) {
		t.Fatalf("expected RemoteServiceError, got %v", res.Err)
	}
}

func TestEngineApply_EmptyBatch(t *testing.T) {
	svc := &fakeService{doc: conclusionDoc()}
	res := NewEngine(svc).Apply(context.Background(), "doc1", nil)
	if res.Err != nil || res.ChunksTotal != 0 || svc.calls() != 0 {
		t.Fatalf("result: %+v calls=%d", res, svc.calls())
	}
}

func TestEngineApply_SerializesPerDocument(t *testing.T) {
	svc := &fakeService{doc: conclusionDoc(), delay: 20 * time.Millisecond}
	e := NewEngine(svc)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.Apply(context.Background(), "doc1", []Operation{InsertText{Text: "a", Index: 1}})
			if res.Err != nil {
				t.Errorf("Apply: %v", res.Err)
			}
		}()
	}
	wg.Wait()

	if svc.overlap.Load() {
		t.Fatal("batches for the same document overlapped")
	}
	if svc.calls() != 4 {
		t.Fatalf("calls=%d", svc.calls())
	}
	if n := e.locks.len(); n != 0 {
		t.Fatalf("lock entries leaked: %d", n)
	}
}

func TestEngineApply_LockRespectsContext(t *testing.T) {
	e := NewEngine(&fakeService{doc: conclusionDoc()})

	release, err := e.locks.acquire(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := e.Apply(ctx, "doc1", []Operation{InsertText{Text: "a", Index: 1}})
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", res.Err)
	}

	// A different document is not blocked.
	res = e.Apply(context.Background(), "doc2", []Operation{InsertText{Text: "a", Index: 1}})
	if res.Err != nil {
		t.Fatalf("doc2: %v", res.Err)
	}
}

func newDocsServiceForTest(t *testing.T, h http.HandlerFunc) (*docs.Service, func()) {
	t.Helper()

	srv := httptest.NewServer(h)
	docSvc, err := docs.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	if err != nil {
		srv.Close()
		t.Fatalf("NewDocsService: %v", err)
	}
	return docSvc, srv.Close
}

func TestRemote_EndToEnd(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []docs.BatchUpdateDocumentRequest
		gotTabs string
	)
	docSvc, cleanup := newDocsServiceForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/documents/"):
			gotTabs = r.URL.Query().Get("includeTabsContent")
			_ = json.NewEncoder(w).Encode(conclusionDoc())
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":batchUpdate"):
			var req docs.BatchUpdateDocumentRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode batchUpdate: %v", err)
			}
			mu.Lock()
			batches = append(batches, req)
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"documentId": "doc1"})
		default:
			http.NotFound(w, r)
		}
	})
	defer cleanup()

	e := NewEngine(NewRemote(docSvc))
	res := e.Apply(context.Background(), "doc1", []Operation{
		ApplyTextStyle{Target: TextSearch{Text: "Conclusion", Instance: 2}, Style: TextStyle{Bold: Some(false)}},
		InsertText{Text: "Hello ", Index: 1},
	})
	if res.Err != nil {
		t.Fatalf("Apply: %v", res.Err)
	}
	if gotTabs != "true" {
		t.Fatalf("expected includeTabsContent=true, got %q", gotTabs)
	}
	if len(batches) != 1 || len(batches[0].Requests) != 2 {
		t.Fatalf("batches: %#v", batches)
	}
	style := batches[0].Requests[0].UpdateTextStyle
	if style.Fields != "bold" || style.Range.StartIndex != 26 || style.Range.EndIndex != 36 {
		t.Fatalf("style request: %+v", style)
	}
}

func TestRemote_BatchFailureIsRemoteError(t *testing.T) {
	docSvc, cleanup := newDocsServiceForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 400, "message": "Invalid requests[0]"}})
	})
	defer cleanup()

	res := NewEngine(NewRemote(docSvc)).Apply(context.Background(), "doc1", []Operation{InsertText{Text: "x", Index: 1}})
	var re *RemoteServiceError
	if !errors.As(res.Err, &re) || re.Chunk != 1 {
		t.Fatalf("expected RemoteServiceError, got %v", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "Invalid requests[0]") {
		t.Fatalf("cause not preserved: %v", res.Err)
	}
}

func TestEngineAppendText(t *testing.T) {
	svc := &fakeService{doc: conclusionDoc()}
	e := NewEngine(svc)

	res := e.AppendText(context.Background(), "doc1", "", "Appendix", true)
	if res.Err != nil {
		t.Fatalf("AppendText: %v", res.Err)
	}
	if svc.calls() != 1 {
		t.Fatalf("expected one update, got %d", svc.calls())
	}
	ins := svc.chunks[0][0].InsertText
	if ins == nil || ins.Location.Index != 59 || ins.Text != "\nAppendix" {
		t.Fatalf("unexpected request: %+v", svc.chunks[0][0])
	}

	if res := e.AppendText(context.Background(), "doc1", "missing", "x", false); !IsNotFound(res.Err) {
		t.Fatalf("expected NotFoundError for unknown tab, got %v", res.Err)
	}
	if res := e.AppendText(context.Background(), "doc1", "", "", false); res.Err != nil || res.ChunksTotal != 0 {
		t.Fatalf("empty append should be a no-op: %+v", res)
	}
}

func TestNeedsSnapshot(t *testing.T) {
	cases := []struct {
		name string
		ops  []Operation
		want bool
	}{
		{"inserts in one tab", []Operation{InsertText{Text: "a", Index: 1}, InsertTableRow{Cell: TableCell{TableStart: 2}}}, false},
		{"explicit style range", []Operation{ApplyTextStyle{Target: ExplicitRange{1, 2}, Style: TextStyle{Bold: Some(true)}}}, true},
		{"delete range", []Operation{DeleteRange{Start: 1, End: 2}}, true},
		{"two tabs", []Operation{InsertText{Text: "a", Index: 1}, InsertText{Text: "b", Index: 1, TabID: "t.2"}}, true},
		{"tabbed replace with default tab", []Operation{InsertText{Text: "a", Index: 1}, ReplaceAllText{Find: "a", Replace: "bb", TabID: "t.1"}}, true},
		{"untabbed replace", []Operation{InsertText{Text: "a", Index: 1}, ReplaceAllText{Find: "a", Replace: "bb"}}, false},
		{"named range deletion", []Operation{InsertText{Text: "a", Index: 1, TabID: "t.2"}, DeleteNamedRange{Name: "n"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NeedsSnapshot(tc.ops); got != tc.want {
				t.Fatalf("NeedsSnapshot = %v, want %v", got, tc.want)
			}
		})
	}
}
