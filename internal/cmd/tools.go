package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/steipete/gdocs-mcp/internal/mcpserver"
	"github.com/steipete/gdocs-mcp/internal/outfmt"
)

// ToolsCmd describes the MCP tools without authenticating, by listing them
// over an in-memory session.
type ToolsCmd struct {
	Name []string `arg:"" optional:"" name:"name" help:"Only describe these tools"`
}

func (c *ToolsCmd) Run(ctx context.Context) error {
	tools, err := listTools(ctx)
	if err != nil {
		return err
	}

	if len(c.Name) > 0 {
		want := make(map[string]bool, len(c.Name))
		for _, n := range c.Name {
			want[strings.TrimSpace(n)] = true
		}
		filtered := tools[:0]
		for _, tool := range tools {
			if want[tool.Name] {
				filtered = append(filtered, tool)
				delete(want, tool.Name)
			}
		}
		if len(want) > 0 {
			missing := make([]string, 0, len(want))
			for n := range want {
				missing = append(missing, n)
			}
			sort.Strings(missing)
			return usage("unknown tool: " + strings.Join(missing, ", "))
		}
		tools = filtered
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"tools": tools})
	}

	rows := make([][]string, 0, len(tools))
	for _, tool := range tools {
		rows = append(rows, []string{tool.Name, firstLine(tool.Description)})
	}
	return outfmt.WriteTable(ctx, os.Stdout, []string{"TOOL", "DESCRIPTION"}, rows)
}

func listTools(ctx context.Context) ([]*mcp.Tool, error) {
	srv := mcpserver.New(mcpserver.Options{Version: VersionString()})

	st, ct := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, st, nil)
	if err != nil {
		return nil, fmt.Errorf("connect server: %w", err)
	}
	defer func() { _ = ss.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "gdocs-mcp-tools", Version: VersionString()}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("connect client: %w", err)
	}
	defer func() { _ = cs.Close() }()

	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	sort.Slice(res.Tools, func(i, j int) bool { return res.Tools[i].Name < res.Tools[j].Name })
	return res.Tools, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
