package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// File is the on-disk config. It is read as JSON5 so users can keep comments
// in it, and written back as plain JSON.
type File struct {
	KeyringBackend string `json:"keyring_backend,omitempty"`
	DefaultAccount string `json:"default_account,omitempty"`
	DefaultClient  string `json:"default_client,omitempty"`
	HTTPAddr       string `json:"http_addr,omitempty"`
	ChunkSize      int    `json:"chunk_size,omitempty"`
	MaxOperations  int    `json:"max_operations,omitempty"`
}

var (
	errUnknownKey = errors.New("unknown config key")
	errBadValue   = errors.New("invalid config value")
)

// Key describes one settable config entry.
type Key struct {
	Name string
	Help string
	get  func(File) string
	set  func(*File, string) error
}

var keys = []Key{
	{
		Name: "keyring_backend",
		Help: "keyring backend: auto, keychain or file",
		get:  func(f File) string { return f.KeyringBackend },
		set: func(f *File, v string) error {
			v = strings.ToLower(strings.TrimSpace(v))
			switch v {
			case "", "auto", "keychain", "file":
				f.KeyringBackend = v
				return nil
			}
			return fmt.Errorf("%w: keyring_backend must be auto, keychain or file", errBadValue)
		},
	},
	{
		Name: "default_account",
		Help: "account email used when --account is not given",
		get:  func(f File) string { return f.DefaultAccount },
		set: func(f *File, v string) error {
			f.DefaultAccount = strings.ToLower(strings.TrimSpace(v))
			return nil
		},
	},
	{
		Name: "default_client",
		Help: "OAuth client name used when --client is not given",
		get:  func(f File) string { return f.DefaultClient },
		set: func(f *File, v string) error {
			if strings.TrimSpace(v) == "" {
				f.DefaultClient = ""
				return nil
			}
			name, err := NormalizeClientName(v)
			if err != nil {
				return err
			}
			f.DefaultClient = name
			return nil
		},
	},
	{
		Name: "http_addr",
		Help: "listen address for serve --http",
		get:  func(f File) string { return f.HTTPAddr },
		set: func(f *File, v string) error {
			f.HTTPAddr = strings.TrimSpace(v)
			return nil
		},
	},
	{
		Name: "chunk_size",
		Help: "requests per document update call (1-50)",
		get:  func(f File) string { return intString(f.ChunkSize) },
		set:  func(f *File, v string) error { return setBoundedInt(&f.ChunkSize, v, 50) },
	},
	{
		Name: "max_operations",
		Help: "operations accepted per batch (1-500)",
		get:  func(f File) string { return intString(f.MaxOperations) },
		set:  func(f *File, v string) error { return setBoundedInt(&f.MaxOperations, v, 500) },
	},
}

func Keys() []Key { return keys }

func lookupKey(name string) (Key, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range keys {
		if k.Name == name {
			return k, nil
		}
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Name)
	}
	sort.Strings(names)

	return Key{}, fmt.Errorf("%w %q (known: %s)", errUnknownKey, name, strings.Join(names, ", "))
}

func (f File) Get(name string) (string, error) {
	k, err := lookupKey(name)
	if err != nil {
		return "", err
	}

	return k.get(f), nil
}

func (f *File) Set(name, value string) error {
	k, err := lookupKey(name)
	if err != nil {
		return err
	}

	return k.set(f, value)
}

func (f *File) Unset(name string) error {
	return f.Set(name, "")
}

func ReadConfig() (File, error) {
	path, err := ConfigPath()
	if err != nil {
		return File{}, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, nil
		}

		return File{}, fmt.Errorf("read config: %w", err)
	}

	var f File
	if err := json5.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return f, nil
}

func WriteConfig(f File) error {
	if _, err := EnsureDir(); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit config: %w", err)
	}

	return nil
}

func intString(v int) string {
	if v == 0 {
		return ""
	}

	return strconv.Itoa(v)
}

func setBoundedInt(dst *int, v string, upper int) error {
	v = strings.TrimSpace(v)
	if v == "" {
		*dst = 0
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > upper {
		return fmt.Errorf("%w: expected a number between 1 and %d, got %q", errBadValue, upper, v)
	}

	*dst = n

	return nil
}
