package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/api/docs/v1"

	"github.com/steipete/gdocs-mcp/internal/docsedit"
)

const defaultPreviewContext = 40

type bulkUpdateInput struct {
	DocumentID string                     `json:"document_id" jsonschema:"document ID or URL"`
	TabID      string                     `json:"tab_id,omitempty" jsonschema:"tab for operations that do not name one; defaults to the first tab"`
	Operations []docsedit.OperationInput `json:"operations" jsonschema:"ordered operations; every index refers to the document as it was before the batch"`
}

type previewInput struct {
	DocumentID      string                     `json:"document_id" jsonschema:"document ID or URL"`
	TabID           string                     `json:"tab_id,omitempty" jsonschema:"tab to preview; defaults to the first tab"`
	Operations      []docsedit.OperationInput `json:"operations"`
	ContextChars    int                        `json:"context_chars,omitempty" jsonschema:"unchanged characters kept around each change (default 40)"`
	IncludeRequests bool                       `json:"include_requests,omitempty" jsonschema:"also return the native update requests"`
}

type insertTextInput struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Index      int64  `json:"index" jsonschema:"1-based insertion index"`
	TabID      string `json:"tab_id,omitempty"`
}

type appendTextInput struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	AddNewline *bool  `json:"add_newline_if_needed,omitempty" jsonschema:"start the text on a new line when the tab is not empty (default true)"`
	TabID      string `json:"tab_id,omitempty"`
}

type deleteRangeInput struct {
	DocumentID string `json:"document_id"`
	StartIndex int64  `json:"start_index" jsonschema:"1-based inclusive start"`
	EndIndex   int64  `json:"end_index" jsonschema:"exclusive end"`
	TabID      string `json:"tab_id,omitempty"`
}

type textStyleInput struct {
	DocumentID    string  `json:"document_id"`
	TabID         string  `json:"tab_id,omitempty"`
	StartIndex    *int64  `json:"start_index,omitempty" jsonschema:"range start, when targeting by index"`
	EndIndex      *int64  `json:"end_index,omitempty" jsonschema:"range end, when targeting by index"`
	TextToFind    *string `json:"text_to_find,omitempty" jsonschema:"literal, case-sensitive text to style instead of a range"`
	MatchInstance *int    `json:"match_instance,omitempty" jsonschema:"which match of text_to_find (1-based, default 1)"`

	Bold            *bool    `json:"bold,omitempty"`
	Italic          *bool    `json:"italic,omitempty"`
	Underline       *bool    `json:"underline,omitempty"`
	Strikethrough   *bool    `json:"strikethrough,omitempty"`
	FontSize        *float64 `json:"font_size,omitempty" jsonschema:"points"`
	FontFamily      *string  `json:"font_family,omitempty"`
	ForegroundColor *string  `json:"foreground_color,omitempty" jsonschema:"#RRGGBB"`
	BackgroundColor *string  `json:"background_color,omitempty" jsonschema:"#RRGGBB"`
	LinkURL         *string  `json:"link_url,omitempty"`
}

type formatMatchingInput struct {
	DocumentID    string `json:"document_id"`
	TabID         string `json:"tab_id,omitempty"`
	TextToFind    string `json:"text_to_find" jsonschema:"exact text to find"`
	MatchInstance *int   `json:"match_instance,omitempty" jsonschema:"which match to format (1-based, default 1)"`

	Bold            *bool    `json:"bold,omitempty"`
	Italic          *bool    `json:"italic,omitempty"`
	Underline       *bool    `json:"underline,omitempty"`
	Strikethrough   *bool    `json:"strikethrough,omitempty"`
	FontSize        *float64 `json:"font_size,omitempty" jsonschema:"points"`
	FontFamily      *string  `json:"font_family,omitempty"`
	ForegroundColor *string  `json:"foreground_color,omitempty" jsonschema:"#RRGGBB"`
	BackgroundColor *string  `json:"background_color,omitempty" jsonschema:"#RRGGBB"`
	LinkURL         *string  `json:"link_url,omitempty"`
}

type paragraphStyleInput struct {
	DocumentID           string  `json:"document_id"`
	TabID                string  `json:"tab_id,omitempty"`
	StartIndex           *int64  `json:"start_index,omitempty"`
	EndIndex             *int64  `json:"end_index,omitempty"`
	TextToFind           *string `json:"text_to_find,omitempty" jsonschema:"style the paragraph containing this text"`
	MatchInstance        *int    `json:"match_instance,omitempty"`
	IndexWithinParagraph *int64  `json:"index_within_paragraph,omitempty" jsonschema:"style the paragraph containing this index"`

	Alignment      *string  `json:"alignment,omitempty" jsonschema:"START, CENTER, END or JUSTIFIED"`
	IndentStart    *float64 `json:"indent_start,omitempty" jsonschema:"points"`
	IndentEnd      *float64 `json:"indent_end,omitempty" jsonschema:"points"`
	SpaceAbove     *float64 `json:"space_above,omitempty" jsonschema:"points"`
	SpaceBelow     *float64 `json:"space_below,omitempty" jsonschema:"points"`
	NamedStyleType *string  `json:"named_style_type,omitempty" jsonschema:"NORMAL_TEXT, TITLE, SUBTITLE or HEADING_1 to HEADING_6"`
	KeepWithNext   *bool    `json:"keep_with_next,omitempty"`
}

type insertTableInput struct {
	DocumentID string `json:"document_id"`
	Rows       int64  `json:"rows"`
	Columns    int64  `json:"columns"`
	Index      int64  `json:"index" jsonschema:"1-based insertion index"`
	TabID      string `json:"tab_id,omitempty"`
}

type insertPageBreakInput struct {
	DocumentID string `json:"document_id"`
	Index      int64  `json:"index" jsonschema:"1-based insertion index"`
	TabID      string `json:"tab_id,omitempty"`
}

type insertImageInput struct {
	DocumentID string   `json:"document_id"`
	ImageURL   string   `json:"image_url" jsonschema:"publicly reachable http(s) image URL"`
	Index      int64    `json:"index" jsonschema:"1-based insertion index"`
	Width      *float64 `json:"width,omitempty" jsonschema:"points"`
	Height     *float64 `json:"height,omitempty" jsonschema:"points"`
	TabID      string   `json:"tab_id,omitempty"`
}

// batchOutput reports how much of a submission reached the document.
// On failure the first ChunksSucceeded chunks stay applied.
type batchOutput struct {
	DocumentID      string     `json:"document_id"`
	Operations      int        `json:"operations"`
	Summary         string     `json:"summary,omitempty"`
	Requests        int        `json:"requests"`
	ChunksSucceeded int        `json:"chunks_succeeded"`
	ChunksTotal     int        `json:"chunks_total"`
	Partial         bool       `json:"partial,omitempty"`
	Error           *toolError `json:"error,omitempty"`
}

type previewOutput struct {
	DocumentID string                `json:"document_id"`
	TabID      string                `json:"tab_id,omitempty"`
	Requests   int                   `json:"requests"`
	Diff       string                `json:"diff"`
	Changes    []docsedit.TextChange `json:"changes"`
	Native     []*docs.Request       `json:"native_requests,omitempty"`
}

func (s *Server) registerEditTools(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name: "bulk_update",
		Description: "Apply an ordered list of edits to a document in as few update calls as possible. " +
			"Indexes refer to the document before the batch; later operations are shifted automatically. " +
			"Up to 500 operations, sent in chunks of 50; a failed chunk stops the batch and earlier chunks stay applied.",
	}, s.bulkUpdate)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "preview_bulk_update",
		Description: "Translate a bulk_update batch without applying it and show the resulting text changes of one tab.",
	}, s.previewBulkUpdate)

	mcp.AddTool(srv, &mcp.Tool{Name: "insert_text", Description: "Insert text at a 1-based index."}, s.insertText)
	mcp.AddTool(srv, &mcp.Tool{Name: "append_text", Description: "Append text to the end of a document or tab."}, s.appendText)
	mcp.AddTool(srv, &mcp.Tool{Name: "delete_range", Description: "Delete the content in [start_index, end_index)."}, s.deleteRange)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "apply_text_style",
		Description: "Apply character formatting to an index range or to the Nth match of text_to_find.",
	}, s.applyTextStyle)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "format_matching_text",
		Description: "Find text and apply character formatting to one match of it.",
	}, s.formatMatchingText)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "apply_paragraph_style",
		Description: "Apply paragraph formatting to a range, to the paragraph containing text_to_find, or to the paragraph containing an index.",
	}, s.applyParagraphStyle)
	mcp.AddTool(srv, &mcp.Tool{Name: "insert_table", Description: "Insert an empty table at an index."}, s.insertTable)
	mcp.AddTool(srv, &mcp.Tool{Name: "insert_page_break", Description: "Insert a page break at an index."}, s.insertPageBreak)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "insert_image_from_url",
		Description: "Insert an inline image from a publicly reachable URL.",
	}, s.insertImage)
}

func (s *Server) bulkUpdate(ctx context.Context, _ *mcp.CallToolRequest, in bulkUpdateInput) (*mcp.CallToolResult, any, error) {
	ops, err := docsedit.ParseOperations(in.Operations, in.TabID)
	if err != nil {
		return errorResult(err)
	}

	return s.apply(ctx, in.DocumentID, ops)
}

func (s *Server) previewBulkUpdate(ctx context.Context, _ *mcp.CallToolRequest, in previewInput) (*mcp.CallToolResult, any, error) {
	id, err := requireID("document_id", in.DocumentID)
	if err != nil {
		return errorResult(err)
	}

	ops, err := docsedit.ParseOperations(in.Operations, in.TabID)
	if err != nil {
		return errorResult(err)
	}

	reqs, p, err := s.engine.Preview(ctx, id, in.TabID, ops)
	if err != nil {
		return errorResult(err)
	}

	contextChars := in.ContextChars
	if contextChars <= 0 {
		contextChars = defaultPreviewContext
	}

	out := previewOutput{
		DocumentID: id,
		TabID:      p.TabID,
		Requests:   len(reqs),
		Diff:       p.Render(contextChars),
		Changes:    p.Changes,
	}
	if in.IncludeRequests {
		out.Native = reqs
	}

	return jsonResult(out)
}

func (s *Server) insertText(ctx context.Context, _ *mcp.CallToolRequest, in insertTextInput) (*mcp.CallToolResult, any, error) {
	return s.applyOne(ctx, in.DocumentID, docsedit.OperationInput{
		Type:  string(docsedit.KindInsertText),
		TabID: in.TabID,
		Text:  &in.Text,
		Index: &in.Index,
	})
}

func (s *Server) appendText(ctx context.Context, _ *mcp.CallToolRequest, in appendTextInput) (*mcp.CallToolResult, any, error) {
	id, err := requireID("document_id", in.DocumentID)
	if err != nil {
		return errorResult(err)
	}

	newline := in.AddNewline == nil || *in.AddNewline
	res := s.engine.AppendText(ctx, id, in.TabID, in.Text, newline)

	return batchResult(id, 1, "1 append_text", res)
}

func (s *Server) deleteRange(ctx context.Context, _ *mcp.CallToolRequest, in deleteRangeInput) (*mcp.CallToolResult, any, error) {
	return s.applyOne(ctx, in.DocumentID, docsedit.OperationInput{
		Type:       string(docsedit.KindDeleteRange),
		TabID:      in.TabID,
		StartIndex: &in.StartIndex,
		EndIndex:   &in.EndIndex,
	})
}

func (s *Server) applyTextStyle(ctx context.Context, _ *mcp.CallToolRequest, in textStyleInput) (*mcp.CallToolResult, any, error) {
	return s.applyOne(ctx, in.DocumentID, docsedit.OperationInput{
		Type:            string(docsedit.KindApplyTextStyle),
		TabID:           in.TabID,
		StartIndex:      in.StartIndex,
		EndIndex:        in.EndIndex,
		TextToFind:      in.TextToFind,
		MatchInstance:   in.MatchInstance,
		Bold:            in.Bold,
		Italic:          in.Italic,
		Underline:       in.Underline,
		Strikethrough:   in.Strikethrough,
		FontSize:        in.FontSize,
		FontFamily:      in.FontFamily,
		ForegroundColor: in.ForegroundColor,
		BackgroundColor: in.BackgroundColor,
		LinkURL:         in.LinkURL,
	})
}

func (s *Server) formatMatchingText(ctx context.Context, _ *mcp.CallToolRequest, in formatMatchingInput) (*mcp.CallToolResult, any, error) {
	return s.applyOne(ctx, in.DocumentID, docsedit.OperationInput{
		Type:            string(docsedit.KindApplyTextStyle),
		TabID:           in.TabID,
		TextToFind:      &in.TextToFind,
		MatchInstance:   in.MatchInstance,
		Bold:            in.Bold,
		Italic:          in.Italic,
		Underline:       in.Underline,
		Strikethrough:   in.Strikethrough,
		FontSize:        in.FontSize,
		FontFamily:      in.FontFamily,
		ForegroundColor: in.ForegroundColor,
		BackgroundColor: in.BackgroundColor,
		LinkURL:         in.LinkURL,
	})
}

func (s *Server) applyParagraphStyle(ctx context.Context, _ *mcp.CallToolRequest, in paragraphStyleInput) (*mcp.CallToolResult, any, error) {
	return s.applyOne(ctx, in.DocumentID, docsedit.OperationInput{
		Type:                 string(docsedit.KindApplyParagraphStyle),
		TabID:                in.TabID,
		StartIndex:           in.StartIndex,
		EndIndex:             in.EndIndex,
		TextToFind:           in.TextToFind,
		MatchInstance:        in.MatchInstance,
		IndexWithinParagraph: in.IndexWithinParagraph,
		Alignment:            in.Alignment,
		IndentStart:          in.IndentStart,
		IndentEnd:            in.IndentEnd,
		SpaceAbove:           in.SpaceAbove,
		SpaceBelow:           in.SpaceBelow,
		NamedStyleType:       in.NamedStyleType,
		KeepWithNext:         in.KeepWithNext,
	})
}

func (s *Server) insertTable(ctx context.Context, _ *mcp.CallToolRequest, in insertTableInput) (*mcp.CallToolResult, any, error) {
	return s.applyOne(ctx, in.DocumentID, docsedit.OperationInput{
		Type:    string(docsedit.KindInsertTable),
		TabID:   in.TabID,
		Rows:    &in.Rows,
		Columns: &in.Columns,
		Index:   &in.Index,
	})
}

func (s *Server) insertPageBreak(ctx context.Context, _ *mcp.CallToolRequest, in insertPageBreakInput) (*mcp.CallToolResult, any, error) {
	return s.applyOne(ctx, in.DocumentID, docsedit.OperationInput{
		Type:  string(docsedit.KindInsertPageBreak),
		TabID: in.TabID,
		Index: &in.Index,
	})
}

func (s *Server) insertImage(ctx context.Context, _ *mcp.CallToolRequest, in insertImageInput) (*mcp.CallToolResult, any, error) {
	return s.applyOne(ctx, in.DocumentID, docsedit.OperationInput{
		Type:     string(docsedit.KindInsertImage),
		TabID:    in.TabID,
		ImageURL: &in.ImageURL,
		Index:    &in.Index,
		Width:    in.Width,
		Height:   in.Height,
	})
}

func (s *Server) applyOne(ctx context.Context, documentID string, in docsedit.OperationInput) (*mcp.CallToolResult, any, error) {
	ops, err := docsedit.ParseOperations([]docsedit.OperationInput{in}, in.TabID)
	if err != nil {
		return errorResult(err)
	}

	return s.apply(ctx, documentID, ops)
}

func (s *Server) apply(ctx context.Context, documentID string, ops []docsedit.Operation) (*mcp.CallToolResult, any, error) {
	id, err := requireID("document_id", documentID)
	if err != nil {
		return errorResult(err)
	}

	res := s.engine.Apply(ctx, id, ops)

	return batchResult(id, len(ops), docsedit.Summary(ops), res)
}

func batchResult(documentID string, ops int, summary string, res docsedit.ExecutionResult) (*mcp.CallToolResult, any, error) {
	out := batchOutput{
		DocumentID:      documentID,
		Operations:      ops,
		Summary:         summary,
		Requests:        res.Requests,
		ChunksSucceeded: res.ChunksSucceeded,
		ChunksTotal:     res.ChunksTotal,
		Partial:         res.Partial(),
		Error:           classify(res.Err),
	}

	result, _, err := jsonResult(out)
	if err != nil {
		return nil, nil, err
	}

	result.IsError = res.Err != nil

	return result, nil, nil
}
