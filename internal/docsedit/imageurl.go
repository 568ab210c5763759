package docsedit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/idna"
)

const (
	imageCacheSize = 256
	imageCacheTTL  = 10 * time.Minute
)

// ImageChecker validates image URLs before they are handed to the document
// service, which only reports a generic failure for unreachable images.
// Reachable URLs are cached.
type ImageChecker struct {
	client *http.Client
	reach  bool
	cache  *expirable.LRU[string, struct{}]
}

// NewImageChecker returns a checker. With reach disabled only the URL shape
// is validated and no request is sent.
func NewImageChecker(client *http.Client, reach bool) *ImageChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ImageChecker{
		client: client,
		reach:  reach,
		cache:  expirable.NewLRU[string, struct{}](imageCacheSize, nil, imageCacheTTL),
	}
}

// Check validates every InsertImage operation in ops. A nil checker accepts
// everything.
func (c *ImageChecker) Check(ctx context.Context, ops []Operation) error {
	if c == nil {
		return nil
	}
	for i, op := range ops {
		img, ok := op.(InsertImage)
		if !ok {
			continue
		}
		if err := c.CheckURL(ctx, img.URL); err != nil {
			return &OperationError{Index: i, Kind: KindInsertImage, Err: err}
		}
	}
	return nil
}

// CheckURL validates a single image URL.
func (c *ImageChecker) CheckURL(ctx context.Context, raw string) error {
	u, err := ValidateImageURL(raw)
	if err != nil {
		return err
	}
	if !c.reach {
		return nil
	}
	key := u.String()
	if _, ok := c.cache.Get(key); ok {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, key, nil)
	if err != nil {
		return validationf("invalid image url: %v", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return validationf("image url is not reachable: %v", err)
	}
	_ = resp.Body.Close()

	// Some hosts reject HEAD outright; only a clear answer is treated as fatal.
	if resp.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	if resp.StatusCode >= 400 {
		return validationf("image url returned HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return validationf("image url does not serve an image (content type %s)", ct)
	}
	c.cache.Add(key, struct{}{})
	return nil
}

// ValidateImageURL checks that raw is an absolute http(s) URL with a valid
// host. Drive share links must use the direct-download form.
func ValidateImageURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, validationf("image url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, validationf("invalid image url %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, validationf("image url must use http or https, got %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, validationf("image url %q has no host", raw)
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, validationf("image url host %q is invalid: %v", host, err)
	}
	if ascii != host {
		if port := u.Port(); port != "" {
			u.Host = fmt.Sprintf("%s:%s", ascii, port)
		} else {
			u.Host = ascii
		}
	}
	if strings.HasSuffix(ascii, "drive.google.com") {
		q := u.Query()
		if strings.HasPrefix(u.Path, "/file/d/") {
			return nil, validationf("drive share links cannot be embedded; use https://drive.google.com/uc?export=download&id=<file id>")
		}
		if u.Path == "/uc" && q.Get("id") != "" && q.Get("export") != "download" {
			return nil, validationf("drive image urls must use export=download")
		}
	}
	return u, nil
}
