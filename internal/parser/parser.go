// Package parser turns raw report bytes (HTML, PDF, DOCX, Markdown, text,
// CSV) into a DocTree.
package parser

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgallion1/huntgest/internal/doctree"
)

// ErrUnsupportedFormat is returned when no parser handles a document.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Parser converts raw document bytes into a DocTree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

// Options tune parser construction.
type Options struct {
	// Selector restricts HTML extraction to matching elements: "tag",
	// ".class" or "tag.class".
	Selector string
	// PDFFallback shells out to pdftotext when the Go PDF reader fails.
	PDFFallback bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{Selector: opts.Selector}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallback}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("%w: file extension %q", ErrUnsupportedFormat, ext)
	}
}

// ForContentType picks a parser from an HTTP Content-Type, falling back to
// the extension of urlPath. Web pages without a usable type are parsed as HTML.
func ForContentType(contentType, urlPath string, opts Options) (Parser, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case "text/html", "application/xhtml+xml":
		return &HTMLParser{Selector: opts.Selector}, nil
	case "application/pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallback}, nil
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return &DOCXParser{}, nil
	case "text/markdown":
		return &MarkdownParser{}, nil
	case "text/csv":
		return &CSVParser{}, nil
	case "text/plain":
		if ext := strings.ToLower(path.Ext(urlPath)); ext == ".md" || ext == ".markdown" {
			return &MarkdownParser{}, nil
		}
		return &TextParser{}, nil
	}
	if IsSupportedExtension(urlPath) {
		return ForFile(urlPath, opts)
	}
	if mt == "" || mt == "application/octet-stream" {
		return &HTMLParser{Selector: opts.Selector}, nil
	}
	return nil, fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, mt)
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

func trimExt(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
}
