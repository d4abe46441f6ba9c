package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/afero"

	"eventtimers/internal/config"
	appLog "eventtimers/internal/log"
)

// maxDocumentBytes bounds a downloaded document.
const maxDocumentBytes = 8 << 20

var (
	ErrEmptyURL    = errors.New("catalog: update URL is empty")
	ErrNotModified = errors.New("catalog: document not modified")
)

// cacheEntry holds HTTP cache metadata for the update URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher checks a remote URL for a newer document and replaces the local
// copy when the content changed. The previous copy is kept next to it with
// a .backup suffix.
type Fetcher struct {
	client *http.Client
	fs     afero.Fs
	path   string
	url    string
}

// NewFetcher creates a Fetcher writing to path on fsys. A nil client gets a
// 15 second timeout.
func NewFetcher(fsys afero.Fs, path, rawURL string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Second,
		}
	}
	return &Fetcher{
		client: client,
		fs:     fsys,
		path:   path,
		url:    rawURL,
	}
}

func (f *Fetcher) metaPath() string   { return f.path + ".meta.json" }
func (f *Fetcher) backupPath() string { return f.path + ".backup" }

// Check fetches the document once, honoring ETag and Last-Modified. It
// returns true when the local file was replaced and ErrNotModified when the
// server or a content comparison says nothing changed.
func (f *Fetcher) Check(ctx context.Context) (bool, error) {
	if f.url == "" {
		return false, ErrEmptyURL
	}

	meta, _ := f.loadMeta()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return false, err
	}

	// Conditional headers only make sense when the cache is for this URL.
	if meta.URL == f.url {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("catalog update check", "url", redactURL(f.url))

	resp, err := f.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		appLog.Info("catalog not modified", "url", redactURL(f.url))
		return false, ErrNotModified
	default:
		return false, fmt.Errorf("catalog: fetch %s: %s", redactURL(f.url), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return false, err
	}
	if len(body) > maxDocumentBytes {
		return false, fmt.Errorf("catalog: document exceeds %d bytes", maxDocumentBytes)
	}

	// Never install a document we could not load afterwards.
	if _, err := Parse(body, time.Now(), time.UTC); err != nil {
		return false, err
	}

	newMeta := cacheEntry{
		URL:          f.url,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	local, err := afero.ReadFile(f.fs, f.path)
	if err == nil && bytes.Equal(local, body) {
		if err := f.saveMeta(newMeta); err != nil {
			appLog.Error("catalog cache save failed", err, "path", f.metaPath())
		}
		appLog.Info("catalog already up to date", "path", f.path)
		return false, ErrNotModified
	}

	if err == nil {
		if err := config.WriteFileAtomic(f.fs, f.backupPath(), local); err != nil {
			return false, fmt.Errorf("catalog: backup: %w", err)
		}
	}
	if err := config.WriteFileAtomic(f.fs, f.path, body); err != nil {
		return false, fmt.Errorf("catalog: write: %w", err)
	}
	if err := f.saveMeta(newMeta); err != nil {
		// Log but still report the update.
		appLog.Error("catalog cache save failed", err, "path", f.metaPath())
	}

	appLog.Info("catalog updated", "path", f.path, "bytes", len(body))
	return true, nil
}

func (f *Fetcher) loadMeta() (cacheEntry, error) {
	var meta cacheEntry
	data, err := afero.ReadFile(f.fs, f.metaPath())
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveMeta(meta cacheEntry) error {
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(f.fs, f.metaPath(), data)
}

// redactURL hides path and query of a URL for logging.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "url://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
