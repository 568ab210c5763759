// Package mcpserver exposes document editing, comments and Drive file
// management as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	gapi "google.golang.org/api/googleapi"

	"github.com/steipete/gdocs-mcp/internal/docsedit"
	"github.com/steipete/gdocs-mcp/internal/googleapi"
	"github.com/steipete/gdocs-mcp/internal/googleid"
)

const (
	serverName = "gdocs-mcp"

	mimeGoogleDoc = "application/vnd.google-apps.document"
	mimeFolder    = "application/vnd.google-apps.folder"
	mimeMarkdown  = "text/markdown"
)

// Options wires the server to authorized API clients. Engine defaults to one
// built on Docs that checks image URLs with Images. UploadDir enables path uploads from that
// directory; without it upload_file only accepts inline data.
type Options struct {
	Docs      *docs.Service
	Drive     *drive.Service
	Engine    *docsedit.Engine
	Images    *docsedit.ImageChecker
	UploadDir string
	Version   string
}

type Server struct {
	docs      *docs.Service
	drive     *drive.Service
	engine    *docsedit.Engine
	uploadDir string
}

// New builds an MCP server with every tool registered.
func New(opts Options) *mcp.Server {
	s := &Server{
		docs:      opts.Docs,
		drive:     opts.Drive,
		engine:    opts.Engine,
		uploadDir: strings.TrimSpace(opts.UploadDir),
	}

	if s.engine == nil && s.docs != nil {
		images := opts.Images
		if images == nil {
			images = docsedit.NewImageChecker(nil, true)
		}
		s.engine = docsedit.NewEngine(docsedit.NewRemote(s.docs), docsedit.WithImageChecker(images))
	}

	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "dev"
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)

	s.registerEditTools(srv)
	s.registerReadTools(srv)
	s.registerCommentTools(srv)
	s.registerDriveTools(srv)

	return srv
}

// toolError is the JSON body of a failed tool call.
type toolError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Operation int    `json:"operation,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
		StructuredContent: v,
	}, nil, nil
}

func errorResult(err error) (*mcp.CallToolResult, any, error) {
	te := classify(err)
	slog.Debug("tool failed", "code", te.Code, "err", err)

	res, _, encErr := jsonResult(map[string]any{"error": te})
	if encErr != nil {
		return nil, nil, encErr
	}

	res.IsError = true

	return res, nil, nil
}

func classify(err error) *toolError {
	if err == nil {
		return nil
	}

	te := &toolError{Code: "internal", Message: err.Error()}
	if idx, ok := docsedit.FailedOperation(err); ok {
		te.Operation = idx + 1
	}

	var (
		apiErr  *gapi.Error
		authErr *googleapi.AuthRequiredError
		cbErr   *googleapi.CircuitBreakerError
	)

	switch {
	case docsedit.IsValidation(err):
		te.Code = "validation"
	case docsedit.IsNotFound(err):
		te.Code = "not_found"
	case errors.As(err, &authErr):
		te.Code = "auth_required"
	case errors.As(err, &cbErr):
		te.Code = "unavailable"
		te.Retryable = true
	case errors.As(err, &apiErr):
		te.Code, te.Retryable = apiErrorCode(apiErr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		te.Code = "deadline_exceeded"
		te.Retryable = true
	case errors.Is(err, context.Canceled):
		te.Code = "canceled"
	case docsedit.IsRemote(err):
		te.Code = "remote"
	}

	return te
}

func apiErrorCode(status int) (string, bool) {
	switch {
	case status == http.StatusBadRequest:
		return "invalid_request", false
	case status == http.StatusUnauthorized:
		return "auth_required", false
	case status == http.StatusForbidden:
		return "permission_denied", false
	case status == http.StatusNotFound:
		return "not_found", false
	case status == http.StatusTooManyRequests:
		return "rate_limited", true
	case status >= 500:
		return "unavailable", true
	}

	return "remote", false
}

func invalidf(format string, args ...any) error {
	return &docsedit.ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func requireID(name, raw string) (string, error) {
	id := googleid.Normalize(raw)
	if id == "" {
		return "", invalidf("%s is required", name)
	}

	return id, nil
}

func clamp(v, lo, hi, def int64) int64 {
	if v == 0 {
		return def
	}

	return min(max(v, lo), hi)
}
