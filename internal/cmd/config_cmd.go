package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/outfmt"
)

type ConfigCmd struct {
	Get   ConfigGetCmd   `cmd:"" aliases:"show" help:"Get a config value"`
	Keys  ConfigKeysCmd  `cmd:"" aliases:"list-keys,names" help:"List available config keys"`
	Set   ConfigSetCmd   `cmd:"" aliases:"add,update" help:"Set a config value"`
	Unset ConfigUnsetCmd `cmd:"" aliases:"rm,del,remove" help:"Unset a config value"`
	List  ConfigListCmd  `cmd:"" aliases:"ls,all" help:"List all config values"`
	Path  ConfigPathCmd  `cmd:"" aliases:"where" help:"Print config file path"`
}

type ConfigGetCmd struct {
	Key string `arg:"" help:"Config key to get"`
}

func (c *ConfigGetCmd) Run(ctx context.Context) error {
	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}

	value, err := cfg.Get(c.Key)
	if err != nil {
		return newUsageError(err)
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"key": c.Key, "value": value})
	}
	fmt.Fprintln(os.Stdout, formatConfigValue(value))
	return nil
}

type ConfigKeysCmd struct{}

func (c *ConfigKeysCmd) Run(ctx context.Context) error {
	keys := config.Keys()

	if outfmt.IsJSON(ctx) {
		out := make([]map[string]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, map[string]string{"key": k.Name, "help": k.Help})
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"keys": out})
	}

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k.Name, k.Help})
	}
	return outfmt.WriteTable(ctx, os.Stdout, []string{"KEY", "DESCRIPTION"}, rows)
}

type ConfigSetCmd struct {
	Key   string `arg:"" help:"Config key to set"`
	Value string `arg:"" help:"Value to set"`
}

func (c *ConfigSetCmd) Run(ctx context.Context, flags *RootFlags) error {
	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Set(c.Key, c.Value); err != nil {
		return newUsageError(err)
	}
	value, _ := cfg.Get(c.Key)

	if err := dryRunExit(ctx, flags, "config.set", map[string]any{
		"key":   c.Key,
		"value": value,
	}); err != nil {
		return err
	}

	if err := config.WriteConfig(cfg); err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"key": c.Key, "value": value, "saved": true})
	}
	fmt.Fprintf(os.Stdout, "Set %s = %s\n", c.Key, value)
	return nil
}

type ConfigUnsetCmd struct {
	Key string `arg:"" help:"Config key to unset"`
}

func (c *ConfigUnsetCmd) Run(ctx context.Context, flags *RootFlags) error {
	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Unset(c.Key); err != nil {
		return newUsageError(err)
	}

	if err := dryRunExit(ctx, flags, "config.unset", map[string]any{"key": c.Key}); err != nil {
		return err
	}

	if err := config.WriteConfig(cfg); err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"key": c.Key, "removed": true})
	}
	fmt.Fprintf(os.Stdout, "Unset %s\n", c.Key)
	return nil
}

type ConfigListCmd struct{}

func (c *ConfigListCmd) Run(ctx context.Context) error {
	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}

	path, _ := config.ConfigPath()
	keys := config.Keys()

	if outfmt.IsJSON(ctx) {
		values := make(map[string]string, len(keys))
		for _, k := range keys {
			values[k.Name], _ = cfg.Get(k.Name)
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"path": path, "values": values})
	}

	if !outfmt.IsPlain(ctx) {
		fmt.Fprintf(os.Stdout, "Config file: %s\n", path)
	}
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		v, _ := cfg.Get(k.Name)
		rows = append(rows, []string{k.Name, formatConfigValue(v)})
	}
	return outfmt.WriteTable(ctx, os.Stdout, []string{"KEY", "VALUE"}, rows)
}

type ConfigPathCmd struct{}

func (c *ConfigPathCmd) Run(ctx context.Context) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"path": path})
	}
	fmt.Fprintln(os.Stdout, path)
	return nil
}

func formatConfigValue(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}
