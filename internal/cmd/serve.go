package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/docsedit"
	"github.com/steipete/gdocs-mcp/internal/googleapi"
	"github.com/steipete/gdocs-mcp/internal/mcpserver"
)

const defaultHTTPAddr = "127.0.0.1:8080"

var (
	newDriveService = googleapi.NewDrive
	runStdio        = func(ctx context.Context, srv *mcp.Server) error { return srv.Run(ctx, &mcp.StdioTransport{}) }
	listenAndServe  = mcpserver.ListenAndServe
)

type ServeCmd struct {
	Transport     string `name:"transport" help:"Transport: stdio|http" enum:"stdio,http" default:"stdio"`
	Addr          string `name:"addr" help:"Listen address for --transport http (default: config http_addr or 127.0.0.1:8080)"`
	UploadDir     string `name:"upload-dir" help:"Directory upload_file may read local files from (disabled when empty)"`
	ChunkSize     int    `name:"chunk-size" help:"Requests per document update call (1-50; default: config or 50)"`
	MaxOperations int    `name:"max-operations" help:"Operations accepted per batch (1-500; default: config or 500)"`
	NoImageCheck  bool   `name:"no-image-check" help:"Do not send a HEAD request to check image URLs before inserting"`
}

// serveSettings merges flags over the config file.
type serveSettings struct {
	addr      string
	uploadDir string
	limits    docsedit.Limits
}

func (c *ServeCmd) settings(cfg config.File) (serveSettings, error) {
	s := serveSettings{
		addr: firstNonEmpty(c.Addr, cfg.HTTPAddr, defaultHTTPAddr),
		limits: docsedit.Limits{
			ChunkSize:     cfg.ChunkSize,
			MaxOperations: cfg.MaxOperations,
		},
	}

	if c.ChunkSize != 0 {
		if c.ChunkSize < 0 || c.ChunkSize > docsedit.DefaultChunkSize {
			return serveSettings{}, usage(fmt.Sprintf("--chunk-size must be between 1 and %d", docsedit.DefaultChunkSize))
		}
		s.limits.ChunkSize = c.ChunkSize
	}
	if c.MaxOperations != 0 {
		if c.MaxOperations < 0 || c.MaxOperations > docsedit.DefaultMaxOperations {
			return serveSettings{}, usage(fmt.Sprintf("--max-operations must be between 1 and %d", docsedit.DefaultMaxOperations))
		}
		s.limits.MaxOperations = c.MaxOperations
	}

	if dir := strings.TrimSpace(c.UploadDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return serveSettings{}, err
		}
		st, err := os.Stat(expanded)
		if err != nil || !st.IsDir() {
			return serveSettings{}, usage(fmt.Sprintf("--upload-dir %s is not a directory", dir))
		}
		s.uploadDir = expanded
	}

	return s, nil
}

func (c *ServeCmd) Run(ctx context.Context, flags *RootFlags) error {
	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}

	settings, err := c.settings(cfg)
	if err != nil {
		return err
	}

	account, err := requireAccount(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	docsSvc, err := newDocsService(ctx, account)
	if err != nil {
		return err
	}
	driveSvc, err := newDriveService(ctx, account)
	if err != nil {
		return err
	}

	engine := docsedit.NewEngine(docsedit.NewRemote(docsSvc),
		docsedit.WithLimits(settings.limits),
		docsedit.WithImageChecker(docsedit.NewImageChecker(nil, !c.NoImageCheck)),
	)

	srv := mcpserver.New(mcpserver.Options{
		Docs:      docsSvc,
		Drive:     driveSvc,
		Engine:    engine,
		UploadDir: settings.uploadDir,
		Version:   VersionString(),
	})

	slog.Info("starting MCP server", "transport", c.Transport, "account", account, "upload_dir", settings.uploadDir)

	if c.Transport == "http" {
		return listenAndServe(ctx, settings.addr, mcpserver.NewHTTPHandler(srv), func(addr net.Addr) {
			fmt.Fprintf(os.Stderr, "MCP endpoint: http://%s/mcp\n", addr)
		})
	}

	err = runStdio(ctx, srv)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
