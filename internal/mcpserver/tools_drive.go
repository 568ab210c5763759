package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	gapi "google.golang.org/api/googleapi"

	"github.com/steipete/gdocs-mcp/internal/docsedit"
	"github.com/steipete/gdocs-mcp/internal/timeparse"
)

const (
	listFileFields = "id,name,mimeType,createdTime,modifiedTime,webViewLink,owners(displayName,emailAddress)"
	infoFileFields = "id,name,description,mimeType,size,createdTime,modifiedTime,webViewLink," +
		"owners(displayName,emailAddress),lastModifyingUser(displayName,emailAddress),shared,parents,version"
	createdFileFields = "id,name,mimeType,size,parents,webViewLink"
)

var nowFn = time.Now

type listDocumentsInput struct {
	MaxResults int64  `json:"max_results,omitempty" jsonschema:"1-100, default 20"`
	Query      string `json:"query,omitempty" jsonschema:"only documents whose name or content contains this text"`
	OrderBy    string `json:"order_by,omitempty" jsonschema:"name, modifiedTime (default, newest first) or createdTime"`
}

type searchDocumentsInput struct {
	Query         string `json:"query" jsonschema:"text to search for"`
	SearchIn      string `json:"search_in,omitempty" jsonschema:"name, content or both (default)"`
	MaxResults    int64  `json:"max_results,omitempty" jsonschema:"1-50, default 10"`
	ModifiedAfter string `json:"modified_after,omitempty" jsonschema:"only documents modified after this: RFC3339, YYYY-MM-DD, 36h or 7d"`
}

type recentDocumentsInput struct {
	MaxResults int64 `json:"max_results,omitempty" jsonschema:"1-50, default 10"`
	DaysBack   int64 `json:"days_back,omitempty" jsonschema:"1-365, default 30"`
}

type documentInfoInput struct {
	DocumentID string `json:"document_id"`
}

type createDocumentInput struct {
	Title          string `json:"title"`
	ParentFolderID string `json:"parent_folder_id,omitempty" jsonschema:"folder to create the document in; defaults to My Drive"`
	InitialText    string `json:"initial_text,omitempty" jsonschema:"text to insert into the new document"`
}

type createFolderInput struct {
	Name           string `json:"name"`
	ParentFolderID string `json:"parent_folder_id,omitempty"`
}

type listFolderInput struct {
	FolderID          string `json:"folder_id,omitempty" jsonschema:"folder ID or URL; defaults to root"`
	IncludeSubfolders *bool  `json:"include_subfolders,omitempty" jsonschema:"default true"`
	IncludeFiles      *bool  `json:"include_files,omitempty" jsonschema:"default true"`
	MaxResults        int64  `json:"max_results,omitempty" jsonschema:"1-100, default 50"`
}

type uploadFileInput struct {
	Name           string `json:"name"`
	MimeType       string `json:"mime_type,omitempty" jsonschema:"content type; guessed from the name or content when empty"`
	Base64Data     string `json:"base64_data,omitempty" jsonschema:"file content, base64 encoded"`
	Path           string `json:"path,omitempty" jsonschema:"local file to upload, relative to the server upload directory"`
	ParentFolderID string `json:"parent_folder_id,omitempty"`
}

type fileInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mime_type,omitempty"`
	Description  string   `json:"description,omitempty"`
	Size         int64    `json:"size,omitempty"`
	CreatedTime  string   `json:"created_time,omitempty"`
	ModifiedTime string   `json:"modified_time,omitempty"`
	WebViewLink  string   `json:"web_view_link,omitempty"`
	Owners       []person `json:"owners,omitempty"`
	LastModifier *person  `json:"last_modifying_user,omitempty"`
	Shared       bool     `json:"shared,omitempty"`
	Parents      []string `json:"parents,omitempty"`
	Version      int64    `json:"version,omitempty"`
}

func (s *Server) registerDriveTools(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{Name: "list_documents", Description: "List Google Docs in Drive, optionally filtered by name or content."}, s.listDocuments)
	mcp.AddTool(srv, &mcp.Tool{Name: "search_documents", Description: "Search Google Docs by name, content or both."}, s.searchDocuments)
	mcp.AddTool(srv, &mcp.Tool{Name: "get_recent_documents", Description: "List the most recently modified Google Docs."}, s.recentDocuments)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_document_info",
		Description: "Get Drive metadata (owners, dates, sharing, parents) and the document revision and tabs.",
	}, s.documentInfo)
	mcp.AddTool(srv, &mcp.Tool{Name: "create_document", Description: "Create a Google Doc, optionally in a folder and with initial text."}, s.createDocument)
	mcp.AddTool(srv, &mcp.Tool{Name: "create_folder", Description: "Create a Drive folder."}, s.createFolder)
	mcp.AddTool(srv, &mcp.Tool{Name: "list_folder_contents", Description: "List the files and subfolders of a Drive folder."}, s.listFolderContents)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "upload_file",
		Description: "Upload a file to Drive from base64 data or from a file in the server upload directory.",
	}, s.uploadFile)
}

func (s *Server) listDocuments(ctx context.Context, _ *mcp.CallToolRequest, in listDocumentsInput) (*mcp.CallToolResult, any, error) {
	q := docsQuery()

	orderBy, err := documentOrder(in.OrderBy)
	if err != nil {
		return errorResult(err)
	}

	if query := strings.TrimSpace(in.Query); query != "" {
		q += fmt.Sprintf(" and (name contains '%s' or fullText contains '%s')", escapeQuery(query), escapeQuery(query))
		orderBy = "" // not allowed with fullText
	}

	return s.listFiles(ctx, q, orderBy, clamp(in.MaxResults, 1, 100, 20))
}

func (s *Server) searchDocuments(ctx context.Context, _ *mcp.CallToolRequest, in searchDocumentsInput) (*mcp.CallToolResult, any, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return errorResult(invalidf("query is required"))
	}

	q := docsQuery()
	orderBy := ""
	esc := escapeQuery(query)

	switch strings.ToLower(strings.TrimSpace(in.SearchIn)) {
	case "name":
		q += fmt.Sprintf(" and name contains '%s'", esc)
		orderBy = "modifiedTime desc"
	case "content":
		q += fmt.Sprintf(" and fullText contains '%s'", esc)
	case "", "both":
		q += fmt.Sprintf(" and (name contains '%s' or fullText contains '%s')", esc, esc)
	default:
		return errorResult(invalidf("search_in must be name, content or both, got %q", in.SearchIn))
	}

	if in.ModifiedAfter != "" {
		after, err := timeparse.ParseSince(in.ModifiedAfter, nowFn(), time.Local)
		if err != nil {
			return errorResult(invalidf("modified_after: %v", err))
		}

		q += fmt.Sprintf(" and modifiedTime > '%s'", timeparse.FormatQueryTime(after))
	}

	return s.listFiles(ctx, q, orderBy, clamp(in.MaxResults, 1, 50, 10))
}

func (s *Server) recentDocuments(ctx context.Context, _ *mcp.CallToolRequest, in recentDocumentsInput) (*mcp.CallToolResult, any, error) {
	days := clamp(in.DaysBack, 1, 365, 30)
	since := timeparse.DaysBack(nowFn(), int(days))
	q := docsQuery() + fmt.Sprintf(" and modifiedTime > '%s'", timeparse.FormatQueryTime(since))

	return s.listFiles(ctx, q, "modifiedTime desc", clamp(in.MaxResults, 1, 50, 10))
}

func (s *Server) listFiles(ctx context.Context, q, orderBy string, limit int64) (*mcp.CallToolResult, any, error) {
	call := s.drive.Files.List().
		Q(q).
		PageSize(limit).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Fields("files(" + listFileFields + ")").
		Context(ctx)
	if orderBy != "" {
		call = call.OrderBy(orderBy)
	}

	resp, err := call.Do()
	if err != nil {
		return errorResult(fmt.Errorf("list files: %w", err))
	}

	files := make([]fileInfo, 0, len(resp.Files))
	for _, f := range resp.Files {
		files = append(files, newFileInfo(f))
	}

	return jsonResult(map[string]any{
		"count": len(files),
		"files": files,
	})
}

func (s *Server) documentInfo(ctx context.Context, _ *mcp.CallToolRequest, in documentInfoInput) (*mcp.CallToolResult, any, error) {
	id, err := requireID("document_id", in.DocumentID)
	if err != nil {
		return errorResult(err)
	}

	var (
		file   *drive.File
		doc    *docs.Document
		docErr error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		f, err := s.drive.Files.Get(id).
			SupportsAllDrives(true).
			Fields(infoFileFields).
			Context(gctx).
			Do()
		if err != nil {
			if isNotFound(err) {
				return &docsedit.NotFoundError{Msg: fmt.Sprintf("file not found (id=%s)", id)}
			}

			return fmt.Errorf("get file: %w", err)
		}

		file = f

		return nil
	})

	g.Go(func() error {
		// Non-Docs files fail here; whether that matters is decided below.
		doc, docErr = s.docs.Documents.Get(id).
			IncludeTabsContent(true).
			Fields("documentId,title,revisionId,tabs(tabProperties,childTabs)").
			Context(gctx).
			Do()

		return nil
	})

	if err := g.Wait(); err != nil {
		return errorResult(err)
	}

	if file.MimeType == mimeGoogleDoc && docErr != nil {
		return errorResult(fmt.Errorf("get document: %w", docErr))
	}

	out := map[string]any{"file": newFileInfo(file)}

	if doc != nil && docErr == nil {
		tabs := documentTabs(doc)
		infos := make([]tabInfo, 0, len(tabs))

		for _, tab := range tabs {
			infos = append(infos, newTabInfo(tab))
		}

		out["revision_id"] = doc.RevisionId
		out["tabs"] = infos
	}

	return jsonResult(out)
}

func (s *Server) createDocument(ctx context.Context, _ *mcp.CallToolRequest, in createDocumentInput) (*mcp.CallToolResult, any, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return errorResult(invalidf("title is required"))
	}

	created, err := s.createFile(ctx, &drive.File{Name: title, MimeType: mimeGoogleDoc}, in.ParentFolderID, nil, "")
	if err != nil {
		return errorResult(err)
	}

	out := map[string]any{"file": newFileInfo(created)}

	if in.InitialText != "" {
		res := s.engine.Apply(ctx, created.Id, []docsedit.Operation{docsedit.InsertText{Text: in.InitialText, Index: 1}})
		if res.Err != nil {
			out["error"] = classify(fmt.Errorf("document created but initial text failed: %w", res.Err))

			result, _, encErr := jsonResult(out)
			if encErr != nil {
				return nil, nil, encErr
			}

			result.IsError = true

			return result, nil, nil
		}

		out["initial_text_inserted"] = true
	}

	return jsonResult(out)
}

func (s *Server) createFolder(ctx context.Context, _ *mcp.CallToolRequest, in createFolderInput) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return errorResult(invalidf("name is required"))
	}

	created, err := s.createFile(ctx, &drive.File{Name: name, MimeType: mimeFolder}, in.ParentFolderID, nil, "")
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(map[string]any{"folder": newFileInfo(created)})
}

func (s *Server) listFolderContents(ctx context.Context, _ *mcp.CallToolRequest, in listFolderInput) (*mcp.CallToolResult, any, error) {
	folder := "root"
	if id, err := requireID("folder_id", in.FolderID); err == nil {
		folder = id
	}

	subfolders := in.IncludeSubfolders == nil || *in.IncludeSubfolders
	files := in.IncludeFiles == nil || *in.IncludeFiles

	q := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folder))

	switch {
	case !subfolders && !files:
		return errorResult(invalidf("include_subfolders and include_files cannot both be false"))
	case !subfolders:
		q += " and mimeType != '" + mimeFolder + "'"
	case !files:
		q += " and mimeType = '" + mimeFolder + "'"
	}

	return s.listFiles(ctx, q, "folder,name", clamp(in.MaxResults, 1, 100, 50))
}

func (s *Server) uploadFile(ctx context.Context, _ *mcp.CallToolRequest, in uploadFileInput) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return errorResult(invalidf("name is required"))
	}

	data, err := s.uploadData(in)
	if err != nil {
		return errorResult(err)
	}

	contentType := strings.TrimSpace(in.MimeType)
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	created, err := s.createFile(ctx, &drive.File{Name: name}, in.ParentFolderID, data, contentType)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(map[string]any{"file": newFileInfo(created)})
}

func (s *Server) uploadData(in uploadFileInput) ([]byte, error) {
	switch {
	case in.Base64Data != "" && in.Path != "":
		return nil, invalidf("give either base64_data or path, not both")
	case in.Base64Data != "":
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(in.Base64Data))
		if err != nil {
			return nil, invalidf("base64_data: %v", err)
		}

		return data, nil
	case in.Path != "":
		path, err := s.uploadPath(in.Path)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path) //nolint:gosec // confined to the upload directory
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}

		return data, nil
	}

	return nil, invalidf("base64_data or path is required")
}

// uploadPath resolves p inside the configured upload directory.
func (s *Server) uploadPath(p string) (string, error) {
	if s.uploadDir == "" {
		return "", invalidf("path uploads are disabled; start the server with --upload-dir")
	}

	root, err := filepath.Abs(s.uploadDir)
	if err != nil {
		return "", fmt.Errorf("upload dir: %w", err)
	}

	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}

	rel, err := filepath.Rel(root, filepath.Clean(full))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", invalidf("path %q is outside the upload directory", p)
	}

	return filepath.Join(root, rel), nil
}

func (s *Server) createFile(ctx context.Context, f *drive.File, parent string, media []byte, contentType string) (*drive.File, error) {
	if parent = strings.TrimSpace(parent); parent != "" {
		id, err := requireID("parent_folder_id", parent)
		if err != nil {
			return nil, err
		}

		f.Parents = []string{id}
	}

	call := s.drive.Files.Create(f).
		SupportsAllDrives(true).
		Fields(createdFileFields)
	if media != nil {
		call = call.Media(bytes.NewReader(media), gapi.ContentType(contentType))
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		if isNotFound(err) && len(f.Parents) > 0 {
			return nil, &docsedit.NotFoundError{Msg: "parent folder not found: " + f.Parents[0]}
		}

		return nil, fmt.Errorf("create %s: %w", f.Name, err)
	}

	return created, nil
}

func docsQuery() string {
	return "mimeType='" + mimeGoogleDoc + "' and trashed=false"
}

func documentOrder(v string) (string, error) {
	switch strings.TrimSpace(v) {
	case "", "modifiedTime":
		return "modifiedTime desc", nil
	case "createdTime":
		return "createdTime desc", nil
	case "name":
		return "name", nil
	}

	return "", invalidf("order_by must be name, modifiedTime or createdTime, got %q", v)
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

func newFileInfo(f *drive.File) fileInfo {
	if f == nil {
		return fileInfo{}
	}

	info := fileInfo{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Description:  f.Description,
		Size:         f.Size,
		CreatedTime:  f.CreatedTime,
		ModifiedTime: f.ModifiedTime,
		WebViewLink:  f.WebViewLink,
		Shared:       f.Shared,
		Parents:      f.Parents,
		Version:      f.Version,
	}

	for _, o := range f.Owners {
		info.Owners = append(info.Owners, newPerson(o))
	}

	if f.LastModifyingUser != nil {
		p := newPerson(f.LastModifyingUser)
		info.LastModifier = &p
	}

	return info
}
