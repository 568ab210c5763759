package googleauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/steipete/gdocs-mcp/internal/config"
)

// manualStateTTL bounds how long a pending two-step authorization can be
// resumed. OAuth codes expire on a similar scale.
const manualStateTTL = 10 * time.Minute

var errEmptyManualState = errors.New("empty manual auth state")

// manualState is the pending half of a headless authorization: step one
// prints an auth URL, step two exchanges the pasted redirect URL.
type manualState struct {
	State        string    `json:"state"`
	Client       string    `json:"client"`
	Scopes       []string  `json:"scopes"`
	ForceConsent bool      `json:"force_consent,omitempty"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	manualStateDirFn = manualStateDir
	manualStateNowFn = time.Now
)

func manualStateDir() (string, error) {
	dir, err := config.EnsureDir()
	if err != nil {
		return "", err
	}

	dir = filepath.Join(dir, "oauth-state")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("ensure oauth state dir: %w", err)
	}

	return dir, nil
}

func manualStatePath(state string) (string, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", errEmptyManualState
	}

	dir, err := manualStateDirFn()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, state+".json"), nil
}

func (st manualState) matches(client string, scopes []string, forceConsent bool) bool {
	return st.Client == client && st.ForceConsent == forceConsent && scopesEqual(st.Scopes, scopes)
}

func (st manualState) expired() bool {
	return manualStateNowFn().Sub(st.CreatedAt) > manualStateTTL
}

// readManualState returns ok=false for missing, unreadable or expired entries;
// the latter two are removed.
func readManualState(path string) (manualState, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path
	if err != nil {
		if os.IsNotExist(err) {
			return manualState{}, false, nil
		}

		return manualState{}, false, fmt.Errorf("read manual auth state: %w", err)
	}

	var st manualState
	if err := json.Unmarshal(data, &st); err != nil || st.State == "" || st.RedirectURI == "" || st.expired() {
		_ = os.Remove(path)
		return manualState{}, false, nil
	}

	return st, true, nil
}

func lookupManualState(state string) (manualState, bool, error) {
	path, err := manualStatePath(state)
	if err != nil {
		return manualState{}, false, err
	}

	return readManualState(path)
}

// newestManualState finds the most recent live state for the same request so
// repeating step one prints the same URL.
func newestManualState(client string, scopes []string, forceConsent bool) (manualState, bool, error) {
	dir, err := manualStateDirFn()
	if err != nil {
		return manualState{}, false, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return manualState{}, false, fmt.Errorf("list manual auth state: %w", err)
	}

	var best manualState

	for _, path := range matches {
		st, ok, err := readManualState(path)
		if err != nil {
			return manualState{}, false, err
		}

		if ok && st.matches(client, scopes, forceConsent) && st.CreatedAt.After(best.CreatedAt) {
			best = st
		}
	}

	return best, best.State != "", nil
}

func saveManualState(st manualState) error {
	path, err := manualStatePath(st.State)
	if err != nil {
		return err
	}

	st.Scopes = sortedScopes(st.Scopes)
	st.CreatedAt = manualStateNowFn().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manual auth state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write manual auth state: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit manual auth state: %w", err)
	}

	return nil
}

func clearManualState(state string) error {
	path, err := manualStatePath(state)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove manual auth state: %w", err)
	}

	return nil
}

func sortedScopes(scopes []string) []string {
	out := slices.Clone(scopes)
	slices.Sort(out)

	return out
}

func scopesEqual(a, b []string) bool {
	return slices.Equal(sortedScopes(a), sortedScopes(b))
}
