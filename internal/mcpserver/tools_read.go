package mcpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/api/docs/v1"
	gapi "google.golang.org/api/googleapi"

	"github.com/steipete/gdocs-mcp/internal/docsedit"
)

type readDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"document ID or URL"`
	Format     string `json:"format,omitempty" jsonschema:"text (default), json for the raw document structure, or markdown for a whole-document export"`
	TabID      string `json:"tab_id,omitempty" jsonschema:"tab ID or title; defaults to the first tab"`
	MaxBytes   int64  `json:"max_bytes,omitempty" jsonschema:"cut text output after this many bytes (0 = no limit)"`
}

type readDocumentOutput struct {
	DocumentID string     `json:"document_id"`
	Title      string     `json:"title"`
	RevisionID string     `json:"revision_id,omitempty"`
	Tab        *tabInfo   `json:"tab,omitempty"`
	Text       string     `json:"text,omitempty"`
	Markdown   string     `json:"markdown,omitempty"`
	Truncated  bool       `json:"truncated,omitempty"`
	Body       *docs.Body `json:"body,omitempty"`
}

type listTabsInput struct {
	DocumentID     string `json:"document_id"`
	IncludeContent bool   `json:"include_content,omitempty" jsonschema:"include the character count of each tab"`
}

type replaceAllTextInput struct {
	DocumentID string `json:"document_id"`
	Find       string `json:"find" jsonschema:"text to replace everywhere"`
	Replace    string `json:"replace" jsonschema:"replacement; may be empty"`
	MatchCase  bool   `json:"match_case,omitempty"`
	TabID      string `json:"tab_id,omitempty" jsonschema:"limit replacement to this tab"`
}

func (s *Server) registerReadTools(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "read_document",
		Description: "Read one tab of a document as plain text or as the raw Docs JSON body, or export the whole document as markdown. Indexes shown in json format are the ones editing tools expect.",
	}, s.readDocument)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_document_tabs",
		Description: "List every tab of a document, nested tabs included, with IDs usable as tab_id.",
	}, s.listDocumentTabs)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "replace_all_text",
		Description: "Replace every occurrence of a string in a document or one tab and report how many were changed.",
	}, s.replaceAllText)
}

func (s *Server) getDocument(ctx context.Context, id string) (*docs.Document, error) {
	doc, err := s.docs.Documents.Get(id).
		IncludeTabsContent(true).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, &docsedit.NotFoundError{Msg: fmt.Sprintf("document not found or not a Google Doc (id=%s)", id)}
		}

		return nil, fmt.Errorf("get document: %w", err)
	}

	if doc == nil {
		return nil, errors.New("get document: empty response")
	}

	return doc, nil
}

func (s *Server) readDocument(ctx context.Context, _ *mcp.CallToolRequest, in readDocumentInput) (*mcp.CallToolResult, any, error) {
	id, err := requireID("document_id", in.DocumentID)
	if err != nil {
		return errorResult(err)
	}

	format := strings.ToLower(strings.TrimSpace(in.Format))
	switch format {
	case "", "text", "json":
	case "markdown", "md":
		return s.exportMarkdown(ctx, id, in)
	default:
		return errorResult(invalidf("format must be text, json or markdown, got %q", in.Format))
	}

	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return errorResult(err)
	}

	tab := findTab(documentTabs(doc), in.TabID)
	if tab == nil {
		return errorResult(&docsedit.NotFoundError{Msg: "tab not found: " + in.TabID})
	}

	info := newTabInfo(tab)
	out := readDocumentOutput{
		DocumentID: doc.DocumentId,
		Title:      doc.Title,
		RevisionID: doc.RevisionId,
		Tab:        &info,
	}

	if format == "json" {
		out.Body = tabBody(tab)
	} else {
		out.Text, out.Truncated = bodyText(tabBody(tab), in.MaxBytes)
	}

	return jsonResult(out)
}

// exportMarkdown uses the Drive markdown export, which always covers every tab.
func (s *Server) exportMarkdown(ctx context.Context, id string, in readDocumentInput) (*mcp.CallToolResult, any, error) {
	if tabID := strings.TrimSpace(in.TabID); tabID != "" {
		slog.Warn("markdown export covers the whole document, ignoring tab_id", "document", id, "tab_id", tabID)
	}

	resp, err := s.drive.Files.Export(id, mimeMarkdown).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return errorResult(&docsedit.NotFoundError{Msg: fmt.Sprintf("document not found or not a Google Doc (id=%s)", id)})
		}

		return errorResult(fmt.Errorf("export markdown: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResult(fmt.Errorf("export markdown: %w", err))
	}

	var buf bytes.Buffer
	complete := appendLimited(&buf, in.MaxBytes, string(data))

	return jsonResult(readDocumentOutput{
		DocumentID: id,
		Markdown:   buf.String(),
		Truncated:  !complete,
	})
}

func (s *Server) listDocumentTabs(ctx context.Context, _ *mcp.CallToolRequest, in listTabsInput) (*mcp.CallToolResult, any, error) {
	id, err := requireID("document_id", in.DocumentID)
	if err != nil {
		return errorResult(err)
	}

	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return errorResult(err)
	}

	tabs := documentTabs(doc)
	out := make([]tabInfo, 0, len(tabs))

	for _, tab := range tabs {
		info := newTabInfo(tab)

		if in.IncludeContent {
			text, _ := bodyText(tabBody(tab), 0)
			n := utf8.RuneCountInString(text)
			info.Characters = &n
		}

		out = append(out, info)
	}

	return jsonResult(map[string]any{
		"document_id": doc.DocumentId,
		"title":       doc.Title,
		"tabs":        out,
	})
}

func (s *Server) replaceAllText(ctx context.Context, _ *mcp.CallToolRequest, in replaceAllTextInput) (*mcp.CallToolResult, any, error) {
	id, err := requireID("document_id", in.DocumentID)
	if err != nil {
		return errorResult(err)
	}

	if in.Find == "" {
		return errorResult(invalidf("find text cannot be empty"))
	}

	req := &docs.ReplaceAllTextRequest{
		ContainsText: &docs.SubstringMatchCriteria{Text: in.Find, MatchCase: in.MatchCase},
		ReplaceText:  in.Replace,
	}
	if in.Replace == "" {
		req.ForceSendFields = []string{"ReplaceText"}
	}
	if tabID := strings.TrimSpace(in.TabID); tabID != "" {
		req.TabsCriteria = &docs.TabsCriteria{TabIds: []string{tabID}}
	}

	resp, err := s.docs.Documents.BatchUpdate(id, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{ReplaceAllText: req}},
	}).Context(ctx).Do()
	if err != nil {
		return errorResult(fmt.Errorf("replace all text: %w", err))
	}

	var changed int64
	if len(resp.Replies) > 0 && resp.Replies[0].ReplaceAllText != nil {
		changed = resp.Replies[0].ReplaceAllText.OccurrencesChanged
	}

	return jsonResult(map[string]any{
		"document_id":         id,
		"find":                in.Find,
		"replace":             in.Replace,
		"occurrences_changed": changed,
	})
}

func isNotFound(err error) bool {
	var apiErr *gapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
