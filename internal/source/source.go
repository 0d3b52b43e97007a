// Package source loads a threat report from a URL or a local file and turns
// it into a plain-text Document.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/huntgest/internal/doctree"
	"github.com/dgallion1/huntgest/internal/parser"
)

var (
	// ErrSourceUnreachable is returned when a document cannot be fetched or
	// yields no text.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrUnsupportedFormat is returned when no parser handles the content.
	ErrUnsupportedFormat = parser.ErrUnsupportedFormat
)

// DefaultUserAgent is sent with every HTTP fetch.
const DefaultUserAgent = "sensAI/1.0"

// Loader fetches and parses documents.
type Loader struct {
	client      *http.Client
	userAgent   string
	maxBytes    int64
	pdfFallback bool
	log         *slog.Logger
	now         func() time.Time
}

// Options configure a Loader. Zero values select defaults.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBytes    int64
	PDFFallback bool
}

func NewLoader(opts Options, log *slog.Logger) *Loader {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	return &Loader{
		client:      &http.Client{Timeout: opts.Timeout},
		userAgent:   opts.UserAgent,
		maxBytes:    opts.MaxBytes,
		pdfFallback: opts.PDFFallback,
		log:         log,
		now:         time.Now,
	}
}

// IsURL reports whether src names an http(s) resource.
func IsURL(src string) bool {
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Load reads src, a URL or file path. selector narrows HTML extraction to
// matching elements and is ignored for other formats.
func (l *Loader) Load(ctx context.Context, src, selector string) (doctree.Document, error) {
	if IsURL(src) {
		return l.fetch(ctx, src, selector)
	}
	return l.readFile(src, selector)
}

// Parse builds a Document from already-read bytes, such as an upload.
func (l *Loader) Parse(data []byte, filename, selector string) (doctree.Document, error) {
	p, err := parser.ForFile(filename, l.parserOptions(selector))
	if err != nil {
		return doctree.Document{}, err
	}
	return l.build(p, bytes.NewReader(data), filename, filename, selector)
}

func (l *Loader) fetch(ctx context.Context, src, selector string) (doctree.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return doctree.Document{}, fmt.Errorf("%w: %s: %w", ErrSourceUnreachable, src, err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return doctree.Document{}, fmt.Errorf("%w: %s: %w", ErrSourceUnreachable, src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return doctree.Document{}, fmt.Errorf("%w: %s: HTTP %d", ErrSourceUnreachable, src, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes))
	if err != nil {
		return doctree.Document{}, fmt.Errorf("%w: %s: read body: %w", ErrSourceUnreachable, src, err)
	}
	l.log.Debug("fetched source", "url", src, "bytes", len(body), "duration", time.Since(start))

	u, _ := url.Parse(src)
	p, err := parser.ForContentType(resp.Header.Get("Content-Type"), u.Path, l.parserOptions(selector))
	if err != nil {
		return doctree.Document{}, err
	}
	name := filepath.Base(u.Path)
	if name == "." || name == "/" {
		name = u.Host
	}
	return l.build(p, bytes.NewReader(body), name, src, selector)
}

func (l *Loader) readFile(path, selector string) (doctree.Document, error) {
	p, err := parser.ForFile(path, l.parserOptions(selector))
	if err != nil {
		return doctree.Document{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return doctree.Document{}, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	defer f.Close()
	return l.build(p, io.LimitReader(f, l.maxBytes), filepath.Base(path), path, selector)
}

func (l *Loader) build(p parser.Parser, r io.Reader, filename, src, selector string) (doctree.Document, error) {
	tree, err := p.Parse(r, filename)
	if err != nil {
		return doctree.Document{}, fmt.Errorf("%w: parse %s: %w", ErrSourceUnreachable, src, err)
	}
	text := strings.TrimSpace(doctree.Flatten(tree))
	if text == "" {
		reason := "the page may be behind bot protection or require JavaScript"
		if selector != "" {
			reason = fmt.Sprintf("the selector %q may not match anything, or %s", selector, reason)
		}
		return doctree.Document{}, fmt.Errorf("%w: no content extracted from %s: %s", ErrSourceUnreachable, src, reason)
	}
	return doctree.Document{
		Text:        text,
		Source:      src,
		Title:       tree.Title,
		ExtractedAt: l.now().UTC(),
	}, nil
}

func (l *Loader) parserOptions(selector string) parser.Options {
	return parser.Options{Selector: selector, PDFFallback: l.pdfFallback}
}
