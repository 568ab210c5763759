// Package googleid extracts document, file and folder IDs from pasted
// Google Docs and Drive links.
package googleid

import (
	"net/url"
	"strings"
)

var hosts = []string{"docs.google.com", "drive.google.com"}

// Normalize returns the ID a Docs or Drive URL points at. Anything it does
// not recognize as such a URL comes back trimmed but otherwise unchanged.
func Normalize(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}

	u := parseMaybeURL(s)
	if u == nil {
		return s
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	if host == "drive.google.com" {
		if id := strings.TrimSpace(u.Query().Get("id")); id != "" {
			return id
		}
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch host {
	case "docs.google.com":
		// /document/d/<id>/edit
		if id := after(parts, "d"); id != "" {
			return id
		}
	case "drive.google.com":
		// /file/d/<id>/view, /drive/u/0/folders/<id>
		if id := after(parts, "d"); id != "" {
			return id
		}

		if id := after(parts, "folders"); id != "" {
			return id
		}
	}

	return s
}

func after(parts []string, marker string) string {
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == marker {
			return strings.TrimSpace(parts[i+1])
		}
	}

	return ""
}

func parseMaybeURL(s string) *url.URL {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		return u
	}

	// scheme-less pastes like "docs.google.com/document/d/..."
	for _, h := range hosts {
		if strings.HasPrefix(s, h+"/") || strings.HasPrefix(s, "www."+h+"/") {
			if u, err := url.Parse("https://" + s); err == nil && u.Host != "" {
				return u
			}
		}
	}

	return nil
}
