package source

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/fsutil"
)

const (
	httpCacheDir    = "http"
	httpContentDir  = "content"
	httpMetaFile    = "meta.json"
	defaultFileName = "download"
)

// httpMeta is the validator record stored next to a cached download.
type httpMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	File         string    `json:"file"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// httpCache is one component's cache directory:
// <cacheRoot>/http/<kind>s/<name>/{content/,meta.json}.
type httpCache struct {
	dir string
}

func (r *Resolver) httpCacheFor(c component.Component) httpCache {
	return httpCache{dir: filepath.Join(r.CacheRoot, httpCacheDir, c.Kind.Plural(), cacheName(c))}
}

func (hc httpCache) contentDir() string { return filepath.Join(hc.dir, httpContentDir) }
func (hc httpCache) metaPath() string   { return filepath.Join(hc.dir, httpMetaFile) }

// valid returns the cached metadata when it belongs to rawURL and the cached
// file is still on disk.
func (hc httpCache) valid(rawURL string) (*httpMeta, bool) {
	data, err := os.ReadFile(hc.metaPath())
	if err != nil {
		return nil, false
	}
	var meta httpMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, false
	}
	if meta.URL != rawURL || meta.File == "" {
		return nil, false
	}
	info, err := os.Stat(filepath.Join(hc.contentDir(), meta.File))
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return &meta, true
}

func (hc httpCache) writeMeta(meta httpMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	tmp := hc.metaPath() + ".tmp"
	if err := os.WriteFile(tmp, data, fsutil.FileMode); err != nil {
		return err
	}
	return os.Rename(tmp, hc.metaPath())
}

// resolveHTTP serves the cached download unless a pull was requested, in
// which case the server is asked whether the cached copy is still current.
func (r *Resolver) resolveHTTP(ctx context.Context, c component.Component, src component.HTTPSource, opts Options) (Result, error) {
	hc := r.httpCacheFor(c)
	meta, ok := hc.valid(src.URL)

	if ok && !opts.Pull {
		return Result{Path: filepath.Join(hc.contentDir(), meta.File), Cached: true}, nil
	}

	timeout := r.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, unavailableErr("creating request", err)
	}
	if ok {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, unavailableErr("GET "+src.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && ok:
		r.logger().Debug("http source not modified", "component", c.Label(), "url", src.URL)
		return Result{Path: filepath.Join(hc.contentDir(), meta.File), Cached: true}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	default:
		return Result{}, unavailable("GET %s: status %d", src.URL, resp.StatusCode)
	}

	name := downloadName(resp, src.URL)
	if err := hc.store(resp.Body, name); err != nil {
		return Result{}, unavailableErr("storing "+src.URL, err)
	}

	newMeta := httpMeta{
		URL:          src.URL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		File:         name,
		FetchedAt:    time.Now().UTC(),
	}
	if err := hc.writeMeta(newMeta); err != nil {
		// The content is in place; without metadata the next run simply
		// downloads again.
		r.logger().Warn("writing http cache metadata", "component", c.Label(), "error", err)
	}

	r.logger().Debug("http source downloaded", "component", c.Label(), "url", src.URL, "file", name)
	return Result{Path: filepath.Join(hc.contentDir(), name)}, nil
}

// store writes body into a fresh content directory and swaps it in.
func (hc httpCache) store(body io.Reader, name string) error {
	if err := os.MkdirAll(hc.dir, fsutil.DirMode); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(hc.dir, httpContentDir+".tmp-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	f, err := os.Create(filepath.Join(tmp, name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	content := hc.contentDir()
	old := ""
	if fsutil.Exists(content) {
		old = content + ".old"
		if err := fsutil.RemoveIfExists(old); err != nil {
			return err
		}
		if err := os.Rename(content, old); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, content); err != nil {
		if old != "" {
			os.Rename(old, content)
		}
		return err
	}
	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

// downloadName picks the cached file name from Content-Disposition, then the
// URL path, then a fixed fallback.
func downloadName(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := safeName(params["filename"]); name != "" {
				return name
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if name := safeName(path.Base(u.Path)); name != "" {
			return name
		}
	}
	return defaultFileName
}

func safeName(name string) string {
	name = strings.TrimSpace(filepath.Base(filepath.FromSlash(name)))
	switch name {
	case "", ".", "..":
		return ""
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return ""
	}
	return name
}

