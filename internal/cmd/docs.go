package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"google.golang.org/api/docs/v1"

	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/docsedit"
	"github.com/steipete/gdocs-mcp/internal/googleapi"
	"github.com/steipete/gdocs-mcp/internal/googleid"
	"github.com/steipete/gdocs-mcp/internal/outfmt"
	"github.com/steipete/gdocs-mcp/internal/ui"
)

var newDocsService = googleapi.NewDocs

type DocsCmd struct {
	Cat    DocsCatCmd    `cmd:"" name:"cat" aliases:"text,read" help:"Print a tab of a Google Doc as plain text"`
	Tabs   DocsTabsCmd   `cmd:"" name:"tabs" aliases:"list-tabs" help:"List the tabs of a Google Doc"`
	Bulk   DocsBulkCmd   `cmd:"" name:"bulk" aliases:"batch,apply" help:"Apply a batch of edit operations (JSON) to a Google Doc"`
	Append DocsAppendCmd `cmd:"" name:"append" help:"Append text to the end of a tab"`
}

// docsEngine opens an engine for account with the configured batch limits.
func docsEngine(ctx context.Context, account string, opts ...docsedit.EngineOption) (*docsedit.Engine, error) {
	svc, err := newDocsService(ctx, account)
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadConfig()
	if err != nil {
		return nil, err
	}

	opts = append([]docsedit.EngineOption{docsedit.WithLimits(docsedit.Limits{
		ChunkSize:     cfg.ChunkSize,
		MaxOperations: cfg.MaxOperations,
	})}, opts...)
	return docsedit.NewEngine(docsedit.NewRemote(svc), opts...), nil
}

func documentIDArg(raw string) (string, error) {
	id := googleid.Normalize(raw)
	if id == "" {
		return "", usage("empty docId")
	}
	return id, nil
}

type DocsCatCmd struct {
	DocID string `arg:"" name:"docId" help:"Doc ID or URL"`
	Tab   string `name:"tab" help:"Tab title or ID (default: first tab)"`
}

func (c *DocsCatCmd) Run(ctx context.Context, flags *RootFlags) error {
	id, err := documentIDArg(c.DocID)
	if err != nil {
		return err
	}

	account, err := requireAccount(flags)
	if err != nil {
		return err
	}

	engine, err := docsEngine(ctx, account)
	if err != nil {
		return err
	}

	snap, err := engine.Snapshot(ctx, id)
	if err != nil {
		return err
	}
	tab, err := snap.Tab(c.Tab)
	if err != nil {
		return err
	}

	text := tab.Text()
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"document_id": snap.DocumentID,
			"tab_id":      tab.ID,
			"text":        text,
		})
	}
	_, err = io.WriteString(os.Stdout, text)
	return err
}

type DocsTabsCmd struct {
	DocID string `arg:"" name:"docId" help:"Doc ID or URL"`
}

func (c *DocsTabsCmd) Run(ctx context.Context, flags *RootFlags) error {
	id, err := documentIDArg(c.DocID)
	if err != nil {
		return err
	}

	account, err := requireAccount(flags)
	if err != nil {
		return err
	}

	engine, err := docsEngine(ctx, account)
	if err != nil {
		return err
	}

	snap, err := engine.Snapshot(ctx, id)
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		out := make([]map[string]any, 0, len(snap.Tabs))
		for _, tab := range snap.Tabs {
			out = append(out, map[string]any{"tab_id": tab.ID, "title": tab.Title, "length": tab.Length()})
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"document_id": snap.DocumentID, "tabs": out})
	}

	rows := make([][]string, 0, len(snap.Tabs))
	for _, tab := range snap.Tabs {
		rows = append(rows, []string{tab.ID, tab.Title, strconv.FormatInt(tab.Length(), 10)})
	}
	return outfmt.WriteTable(ctx, os.Stdout, []string{"ID", "TITLE", "LENGTH"}, rows)
}

type DocsBulkCmd struct {
	DocID   string `arg:"" name:"docId" help:"Doc ID or URL"`
	Ops     string `name:"ops" required:"" help:"Operations JSON: inline, @file or - for stdin"`
	Tab     string `name:"tab" help:"Default tab for operations without tab_id"`
	Context int    `name:"context" help:"Characters of unchanged text shown around each change in --dry-run" default:"40"`
	NoCheck bool   `name:"no-image-check" help:"Skip the HEAD request that checks image URLs"`
}

func (c *DocsBulkCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)

	id, err := documentIDArg(c.DocID)
	if err != nil {
		return err
	}

	raw, err := resolveInlineOrFileBytes(c.Ops)
	if err != nil {
		return newUsageError(err)
	}

	inputs, err := docsedit.DecodeOperations(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	ops, err := docsedit.ParseOperations(inputs, strings.TrimSpace(c.Tab))
	if err != nil {
		return err
	}

	account, err := requireAccount(flags)
	if err != nil {
		return err
	}

	engine, err := docsEngine(ctx, account, docsedit.WithImageChecker(docsedit.NewImageChecker(nil, !c.NoCheck)))
	if err != nil {
		return err
	}

	if flags != nil && flags.DryRun {
		return c.preview(ctx, engine, id, ops)
	}

	res := engine.Apply(ctx, id, ops)

	if outfmt.IsJSON(ctx) {
		payload := map[string]any{
			"document_id":      id,
			"operations":       len(ops),
			"requests":         res.Requests,
			"chunks_total":     res.ChunksTotal,
			"chunks_succeeded": res.ChunksSucceeded,
			"applied":          res.Err == nil,
			"partial":          res.Partial(),
		}
		if res.Err != nil {
			payload["error"] = res.Err.Error()
		}
		if err := outfmt.WriteJSON(ctx, os.Stdout, payload); err != nil {
			return err
		}
		return res.Err
	}

	if res.Err != nil {
		if res.Partial() {
			u.Err().Warnf("applied %d of %d chunks before failing", res.ChunksSucceeded, res.ChunksTotal)
		}
		return res.Err
	}

	u.Out().Printf("document_id\t%s", id)
	u.Out().Printf("applied\t%s", docsedit.Summary(ops))
	u.Out().Printf("requests\t%d", res.Requests)
	u.Out().Printf("chunks\t%d", res.ChunksTotal)
	return nil
}

func (c *DocsBulkCmd) preview(ctx context.Context, engine *docsedit.Engine, id string, ops []docsedit.Operation) error {
	reqs, pv, err := engine.Preview(ctx, id, c.Tab, ops)
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(outfmt.WithSelect(ctx, nil), os.Stdout, map[string]any{
			"dry_run":     true,
			"document_id": id,
			"tab_id":      pv.TabID,
			"requests":    requestsOrEmpty(reqs),
			"changes":     pv.Changes,
			"diff":        pv.Render(c.Context),
		})
	}

	u := ui.FromContext(ctx)
	u.Out().Printf("Dry run: %s (%d requests)", docsedit.Summary(ops), len(reqs))
	u.Out().Println(pv.Render(c.Context))
	return &ExitError{Code: 0}
}

func requestsOrEmpty(reqs []*docs.Request) []*docs.Request {
	if reqs == nil {
		return []*docs.Request{}
	}
	return reqs
}

type DocsAppendCmd struct {
	DocID     string `arg:"" name:"docId" help:"Doc ID or URL"`
	Text      string `arg:"" optional:"" name:"text" help:"Text to append (or use --file / stdin)"`
	File      string `name:"file" short:"f" help:"Read text from file (use - for stdin)"`
	Tab       string `name:"tab" help:"Tab title or ID (default: first tab)"`
	NoNewline bool   `name:"no-newline" help:"Do not start a new line before the text"`
}

func (c *DocsAppendCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)

	id, err := documentIDArg(c.DocID)
	if err != nil {
		return err
	}

	text := c.Text
	if text == "" && c.File != "" {
		spec := c.File
		if spec != "-" {
			spec = "@" + spec
		}
		b, readErr := resolveInlineOrFileBytes(spec)
		if readErr != nil {
			return newUsageError(readErr)
		}
		text = string(b)
	}
	if text == "" {
		return usage("no text provided (use argument or --file)")
	}

	if err := dryRunExit(ctx, flags, "docs.append", map[string]any{
		"document_id": id,
		"tab":         c.Tab,
		"characters":  len([]rune(text)),
		"newline":     !c.NoNewline,
	}); err != nil {
		return err
	}

	account, err := requireAccount(flags)
	if err != nil {
		return err
	}

	engine, err := docsEngine(ctx, account)
	if err != nil {
		return err
	}

	res := engine.AppendText(ctx, id, c.Tab, text, !c.NoNewline)
	if res.Err != nil {
		return res.Err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"document_id": id,
			"appended":    true,
			"requests":    res.Requests,
		})
	}
	u.Out().Printf("document_id\t%s", id)
	u.Out().Println(fmt.Sprintf("appended\t%d characters", len([]rune(text))))
	return nil
}
