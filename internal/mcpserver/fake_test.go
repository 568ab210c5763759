package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"unicode/utf16"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/steipete/gdocs-mcp/internal/docsedit"
)

// fakeGoogle serves the parts of the Docs and Drive APIs the tools use.
type fakeGoogle struct {
	mu sync.Mutex

	doc       *docs.Document
	failBatch int // 1-based batchUpdate call that fails with a 500

	batches  []*docs.BatchUpdateDocumentRequest
	queries  []url.Values
	created  []*drive.File
	uploads  []upload
	comments []*drive.Comment
	replies  []*drive.Reply
	deleted  []string
	exports  []string
}

type upload struct {
	meta        drive.File
	contentType string
	data        []byte
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": code, "message": msg}})
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/v1/documents/"):
		f.serveDocs(w, r)
	case strings.HasPrefix(r.URL.Path, "/upload/drive/v3/files"):
		f.serveUpload(w, r)
	default:
		f.serveDrive(w, r, strings.TrimPrefix(r.URL.Path, "/drive/v3"))
	}
}

func (f *fakeGoogle) serveDocs(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")

	if id, ok := strings.CutSuffix(rest, ":batchUpdate"); ok && r.Method == http.MethodPost {
		var req docs.BatchUpdateDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(w, http.StatusBadRequest, err.Error())
			return
		}

		f.batches = append(f.batches, &req)
		if f.failBatch == len(f.batches) {
			writeAPIError(w, http.StatusInternalServerError, "backend error")
			return
		}

		replies := make([]*docs.Response, len(req.Requests))
		for i, rq := range req.Requests {
			replies[i] = &docs.Response{}
			if rq.ReplaceAllText != nil {
				replies[i].ReplaceAllText = &docs.ReplaceAllTextResponse{OccurrencesChanged: 2}
			}
		}

		writeJSON(w, &docs.BatchUpdateDocumentResponse{DocumentId: id, Replies: replies})

		return
	}

	if r.Method == http.MethodGet && f.doc != nil && rest == f.doc.DocumentId {
		writeJSON(w, f.doc)
		return
	}

	writeAPIError(w, http.StatusNotFound, "document not found")
}

func (f *fakeGoogle) serveDrive(w http.ResponseWriter, r *http.Request, path string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case path == "/files" && r.Method == http.MethodGet:
		f.queries = append(f.queries, r.URL.Query())
		writeJSON(w, &drive.FileList{Files: []*drive.File{{Id: "doc1", Name: "Report", MimeType: mimeGoogleDoc}}})
	case path == "/files" && r.Method == http.MethodPost:
		var file drive.File
		_ = json.NewDecoder(r.Body).Decode(&file)
		file.Id = fmt.Sprintf("new-%d", len(f.created)+1)
		file.WebViewLink = "https://docs.google.com/document/d/" + file.Id + "/edit"
		f.created = append(f.created, &file)
		writeJSON(w, &file)
	case len(parts) == 3 && parts[0] == "files" && parts[2] == "export" && r.Method == http.MethodGet:
		if parts[1] != "doc1" {
			writeAPIError(w, http.StatusNotFound, "file not found")
			return
		}
		f.exports = append(f.exports, r.URL.Query().Get("mimeType"))
		w.Header().Set("Content-Type", "text/markdown")
		_, _ = io.WriteString(w, "# Intro\n\nConclusion one.\n")
	case len(parts) == 2 && parts[0] == "files" && r.Method == http.MethodGet:
		switch parts[1] {
		case "doc1":
			writeJSON(w, &drive.File{
				Id:       "doc1",
				Name:     "Report",
				MimeType: mimeGoogleDoc,
				Owners:   []*drive.User{{DisplayName: "Ada", EmailAddress: "ada@example.com"}},
				Parents:  []string{"folder1"},
				Version:  7,
			})
		case "img1":
			writeJSON(w, &drive.File{Id: "img1", Name: "chart.png", MimeType: "image/png", Size: 42})
		default:
			writeAPIError(w, http.StatusNotFound, "file not found")
		}
	case len(parts) >= 3 && parts[2] == "comments":
		f.serveComments(w, r, parts)
	default:
		writeAPIError(w, http.StatusNotFound, "no route for "+r.Method+" "+path)
	}
}

func (f *fakeGoogle) serveComments(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 3 && r.Method == http.MethodGet:
		writeJSON(w, &drive.CommentList{Comments: f.comments})
	case len(parts) == 3 && r.Method == http.MethodPost:
		var c drive.Comment
		_ = json.NewDecoder(r.Body).Decode(&c)
		c.Id = fmt.Sprintf("c%d", len(f.comments)+1)
		f.comments = append(f.comments, &c)
		writeJSON(w, &c)
	case len(parts) == 4 && r.Method == http.MethodGet:
		for _, c := range f.comments {
			if c.Id == parts[3] {
				writeJSON(w, c)
				return
			}
		}

		writeAPIError(w, http.StatusNotFound, "comment not found")
	case len(parts) == 4 && r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, parts[3])
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 5 && parts[4] == "replies" && r.Method == http.MethodPost:
		var reply drive.Reply
		_ = json.NewDecoder(r.Body).Decode(&reply)
		reply.Id = fmt.Sprintf("r%d", len(f.replies)+1)
		f.replies = append(f.replies, &reply)
		writeJSON(w, &reply)
	default:
		writeAPIError(w, http.StatusNotFound, "no comment route")
	}
}

func (f *fakeGoogle) serveUpload(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		writeAPIError(w, http.StatusBadRequest, "expected multipart upload")
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])

	var up upload

	metaPart, err := mr.NextPart()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	_ = json.NewDecoder(metaPart).Decode(&up.meta)

	mediaPart, err := mr.NextPart()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	up.contentType = mediaPart.Header.Get("Content-Type")
	up.data, _ = io.ReadAll(mediaPart)
	f.uploads = append(f.uploads, up)

	file := up.meta
	file.Id = fmt.Sprintf("up-%d", len(f.uploads))
	file.MimeType = up.contentType
	file.Size = int64(len(up.data))
	writeJSON(w, &file)
}

func (f *fakeGoogle) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.batches)
}

func (f *fakeGoogle) lastBatch(t *testing.T) []*docs.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.batches) == 0 {
		t.Fatalf("no batchUpdate calls recorded")
	}

	return f.batches[len(f.batches)-1].Requests
}

func testPara(start int64, text string) *docs.StructuralElement {
	end := start + int64(len(utf16.Encode([]rune(text))))

	return &docs.StructuralElement{
		StartIndex: start,
		EndIndex:   end,
		Paragraph: &docs.Paragraph{Elements: []*docs.ParagraphElement{{
			StartIndex: start,
			EndIndex:   end,
			TextRun:    &docs.TextRun{Content: text},
		}}},
	}
}

func testTab(id, title string, index int64, content ...*docs.StructuralElement) *docs.Tab {
	body := append([]*docs.StructuralElement{{EndIndex: 1, SectionBreak: &docs.SectionBreak{}}}, content...)

	return &docs.Tab{
		TabProperties: &docs.TabProperties{TabId: id, Title: title, Index: index},
		DocumentTab:   &docs.DocumentTab{Body: &docs.Body{Content: body}},
	}
}

// reportDoc has two tabs: "Main" with "Intro\nConclusion one.\n" and
// "Notes" with "Hello notes\n".
func reportDoc() *docs.Document {
	return &docs.Document{
		DocumentId: "doc1",
		Title:      "Report",
		RevisionId: "rev-1",
		Tabs: []*docs.Tab{
			testTab("t.0", "Main", 0, testPara(1, "Intro\n"), testPara(7, "Conclusion one.\n")),
			testTab("t.1", "Notes", 1, testPara(1, "Hello notes\n")),
		},
	}
}

type testEnv struct {
	google *fakeGoogle
	client *mcp.ClientSession
}

func newTestEnv(t *testing.T, fg *fakeGoogle, uploadDir string) *testEnv {
	t.Helper()

	srv := httptest.NewServer(fg)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	opts := []option.ClientOption{
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL + "/"),
	}

	docsSvc, err := docs.NewService(ctx, opts...)
	if err != nil {
		t.Fatalf("docs.NewService: %v", err)
	}

	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		t.Fatalf("drive.NewService: %v", err)
	}

	server := New(Options{
		Docs:      docsSvc,
		Drive:     driveSvc,
		Images:    docsedit.NewImageChecker(nil, false),
		UploadDir: uploadDir,
		Version:   "test",
	})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ss, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)

	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })

	return &testEnv{google: fg, client: cs}
}

// call runs a tool and decodes its JSON text body.
func (e *testEnv) call(t *testing.T, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()

	res, err := e.client.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}

	if len(res.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}

	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): unexpected content %T", name, res.Content[0])
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("CallTool(%s): decode %q: %v", name, text.Text, err)
	}

	return out, res.IsError
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)

	return code
}
