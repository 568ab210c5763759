package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/api/drive/v3"

	"github.com/steipete/gdocs-mcp/internal/docsedit"
)

const (
	commentFields = "id,author(displayName,emailAddress),content,createdTime,modifiedTime,resolved,quotedFileContent,replies(id,author(displayName,emailAddress),content,createdTime,action)"
	replyFields   = "id,author(displayName,emailAddress),content,createdTime,action"
)

type listCommentsInput struct {
	DocumentID      string `json:"document_id"`
	IncludeResolved *bool  `json:"include_resolved,omitempty" jsonschema:"include resolved comments (default true)"`
	MaxResults      int64  `json:"max_results,omitempty" jsonschema:"1-100, default 100"`
}

type commentInput struct {
	DocumentID string `json:"document_id"`
	CommentID  string `json:"comment_id"`
}

type addCommentInput struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content" jsonschema:"comment text"`
	StartIndex *int64 `json:"start_index,omitempty" jsonschema:"anchor start (1-based, inclusive); requires end_index"`
	EndIndex   *int64 `json:"end_index,omitempty" jsonschema:"anchor end (exclusive)"`
	QuotedText string `json:"quoted_text,omitempty" jsonschema:"quoted text to show with the comment when no range is given"`
	TabID      string `json:"tab_id,omitempty" jsonschema:"tab the anchor range refers to"`
}

type replyInput struct {
	DocumentID string `json:"document_id"`
	CommentID  string `json:"comment_id"`
	Content    string `json:"content"`
}

type resolveInput struct {
	DocumentID string `json:"document_id"`
	CommentID  string `json:"comment_id"`
	Content    string `json:"content,omitempty" jsonschema:"optional closing note"`
}

type person struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type replyInfo struct {
	ID          string `json:"id"`
	Author      person `json:"author"`
	Content     string `json:"content,omitempty"`
	CreatedTime string `json:"created_time,omitempty"`
	Action      string `json:"action,omitempty"`
}

type commentInfo struct {
	ID           string      `json:"id"`
	Author       person      `json:"author"`
	Content      string      `json:"content"`
	QuotedText   string      `json:"quoted_text,omitempty"`
	CreatedTime  string      `json:"created_time,omitempty"`
	ModifiedTime string      `json:"modified_time,omitempty"`
	Resolved     bool        `json:"resolved"`
	Replies      []replyInfo `json:"replies,omitempty"`
}

func (s *Server) registerCommentTools(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{Name: "list_comments", Description: "List the comments on a document with their replies."}, s.listComments)
	mcp.AddTool(srv, &mcp.Tool{Name: "get_comment", Description: "Get one comment and its replies."}, s.getComment)
	mcp.AddTool(srv, &mcp.Tool{
		Name: "add_comment",
		Description: "Add a comment to a document. With start_index and end_index the commented text is quoted and anchored; " +
			"the Docs UI may still show such comments as unanchored.",
	}, s.addComment)
	mcp.AddTool(srv, &mcp.Tool{Name: "reply_to_comment", Description: "Reply to a comment."}, s.replyToComment)
	mcp.AddTool(srv, &mcp.Tool{Name: "resolve_comment", Description: "Mark a comment as resolved."}, s.resolveComment)
	mcp.AddTool(srv, &mcp.Tool{Name: "delete_comment", Description: "Delete a comment."}, s.deleteComment)
}

func (s *Server) listComments(ctx context.Context, _ *mcp.CallToolRequest, in listCommentsInput) (*mcp.CallToolResult, any, error) {
	id, err := requireID("document_id", in.DocumentID)
	if err != nil {
		return errorResult(err)
	}

	limit := clamp(in.MaxResults, 1, 100, 100)
	includeResolved := in.IncludeResolved == nil || *in.IncludeResolved

	var (
		out  []commentInfo
		page string
	)

	for {
		call := s.drive.Comments.List(id).
			IncludeDeleted(false).
			PageSize(limit).
			Fields("nextPageToken", "comments("+commentFields+")").
			Context(ctx)
		if page != "" {
			call = call.PageToken(page)
		}

		resp, err := call.Do()
		if err != nil {
			return errorResult(fmt.Errorf("list comments: %w", err))
		}

		for _, c := range resp.Comments {
			if c == nil || (c.Resolved && !includeResolved) {
				continue
			}

			out = append(out, newCommentInfo(c))
		}

		page = resp.NextPageToken
		if page == "" || int64(len(out)) >= limit {
			break
		}
	}

	if int64(len(out)) > limit {
		out = out[:limit]
	}

	return jsonResult(map[string]any{
		"document_id": id,
		"count":       len(out),
		"comments":    out,
	})
}

func (s *Server) getComment(ctx context.Context, _ *mcp.CallToolRequest, in commentInput) (*mcp.CallToolResult, any, error) {
	id, commentID, err := commentIDs(in.DocumentID, in.CommentID)
	if err != nil {
		return errorResult(err)
	}

	c, err := s.drive.Comments.Get(id, commentID).
		Fields(commentFields).
		Context(ctx).
		Do()
	if err != nil {
		return errorResult(fmt.Errorf("get comment: %w", err))
	}

	return jsonResult(newCommentInfo(c))
}

func (s *Server) addComment(ctx context.Context, _ *mcp.CallToolRequest, in addCommentInput) (*mcp.CallToolResult, any, error) {
	id, err := requireID("document_id", in.DocumentID)
	if err != nil {
		return errorResult(err)
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return errorResult(invalidf("content is required"))
	}

	comment := &drive.Comment{Content: content}

	switch {
	case in.StartIndex != nil || in.EndIndex != nil:
		if in.StartIndex == nil || in.EndIndex == nil {
			return errorResult(invalidf("start_index and end_index must be given together"))
		}

		quoted, err := s.quoteRange(ctx, id, in.TabID, docsedit.Range{Start: *in.StartIndex, End: *in.EndIndex})
		if err != nil {
			return errorResult(err)
		}

		comment.QuotedFileContent = &drive.CommentQuotedFileContent{Value: quoted, MimeType: "text/html"}
		comment.Anchor = textAnchor(id, *in.StartIndex, *in.EndIndex)
	case in.QuotedText != "":
		comment.QuotedFileContent = &drive.CommentQuotedFileContent{Value: in.QuotedText, MimeType: "text/html"}
	}

	created, err := s.drive.Comments.Create(id, comment).
		Fields(commentFields).
		Context(ctx).
		Do()
	if err != nil {
		return errorResult(fmt.Errorf("create comment: %w", err))
	}

	return jsonResult(newCommentInfo(created))
}

func (s *Server) replyToComment(ctx context.Context, _ *mcp.CallToolRequest, in replyInput) (*mcp.CallToolResult, any, error) {
	id, commentID, err := commentIDs(in.DocumentID, in.CommentID)
	if err != nil {
		return errorResult(err)
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return errorResult(invalidf("content is required"))
	}

	reply, err := s.drive.Replies.Create(id, commentID, &drive.Reply{Content: content}).
		Fields(replyFields).
		Context(ctx).
		Do()
	if err != nil {
		return errorResult(fmt.Errorf("create reply: %w", err))
	}

	return jsonResult(newReplyInfo(reply))
}

// resolveComment marks a comment resolved by posting a reply with the
// "resolve" action.
func (s *Server) resolveComment(ctx context.Context, _ *mcp.CallToolRequest, in resolveInput) (*mcp.CallToolResult, any, error) {
	id, commentID, err := commentIDs(in.DocumentID, in.CommentID)
	if err != nil {
		return errorResult(err)
	}

	reply, err := s.drive.Replies.Create(id, commentID, &drive.Reply{
		Action:  "resolve",
		Content: strings.TrimSpace(in.Content),
	}).
		Fields(replyFields).
		Context(ctx).
		Do()
	if err != nil {
		return errorResult(fmt.Errorf("resolve comment: %w", err))
	}

	return jsonResult(map[string]any{
		"document_id": id,
		"comment_id":  commentID,
		"resolved":    true,
		"reply":       newReplyInfo(reply),
	})
}

func (s *Server) deleteComment(ctx context.Context, _ *mcp.CallToolRequest, in commentInput) (*mcp.CallToolResult, any, error) {
	id, commentID, err := commentIDs(in.DocumentID, in.CommentID)
	if err != nil {
		return errorResult(err)
	}

	if err := s.drive.Comments.Delete(id, commentID).Context(ctx).Do(); err != nil {
		return errorResult(fmt.Errorf("delete comment: %w", err))
	}

	return jsonResult(map[string]any{
		"document_id": id,
		"comment_id":  commentID,
		"deleted":     true,
	})
}

// quoteRange returns the text of r in the given tab, read from a fresh
// snapshot.
func (s *Server) quoteRange(ctx context.Context, documentID, tabID string, r docsedit.Range) (string, error) {
	if r.Start < 1 || r.End <= r.Start {
		return "", invalidf("invalid range [%d, %d): end must be greater than start and start at least 1", r.Start, r.End)
	}

	snap, err := s.engine.Snapshot(ctx, documentID)
	if err != nil {
		return "", &docsedit.RemoteServiceError{DocumentID: documentID, Err: err}
	}

	tab, err := snap.Tab(tabID)
	if err != nil {
		return "", err
	}

	var out []uint16

	for _, seg := range tab.Segments {
		units := utf16.Encode([]rune(seg.Text))
		segEnd := seg.Start + int64(len(units))

		if segEnd <= r.Start || seg.Start >= r.End {
			continue
		}

		from := max(r.Start-seg.Start, 0)
		to := min(r.End-seg.Start, int64(len(units)))
		out = append(out, units[from:to]...)
	}

	return string(utf16.Decode(out)), nil
}

// textAnchor builds the Docs anchor for a 1-based [start, end) range.
func textAnchor(documentID string, start, end int64) string {
	n := end - start
	anchor := map[string]any{
		"r": documentID,
		"a": []any{map[string]any{"txt": map[string]int64{"o": start - 1, "l": n, "ml": n}}},
	}

	data, err := json.Marshal(anchor)
	if err != nil {
		return ""
	}

	return string(data)
}

func commentIDs(documentID, commentID string) (string, string, error) {
	id, err := requireID("document_id", documentID)
	if err != nil {
		return "", "", err
	}

	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return "", "", invalidf("comment_id is required")
	}

	return id, commentID, nil
}

func newPerson(u *drive.User) person {
	if u == nil {
		return person{}
	}

	return person{Name: u.DisplayName, Email: u.EmailAddress}
}

func newReplyInfo(r *drive.Reply) replyInfo {
	if r == nil {
		return replyInfo{}
	}

	return replyInfo{
		ID:          r.Id,
		Author:      newPerson(r.Author),
		Content:     r.Content,
		CreatedTime: r.CreatedTime,
		Action:      r.Action,
	}
}

func newCommentInfo(c *drive.Comment) commentInfo {
	info := commentInfo{
		ID:           c.Id,
		Author:       newPerson(c.Author),
		Content:      c.Content,
		CreatedTime:  c.CreatedTime,
		ModifiedTime: c.ModifiedTime,
		Resolved:     c.Resolved,
	}

	if c.QuotedFileContent != nil {
		info.QuotedText = c.QuotedFileContent.Value
	}

	for _, r := range c.Replies {
		info.Replies = append(info.Replies, newReplyInfo(r))
	}

	return info
}
