// Package pathspec parses variant request paths of the form
// <dir>/<name>@<size>.<format>, where <size> is "{N}w", "{N}h",
// "{N}w_{M}h" or empty (format conversion only).
package pathspec

import (
	"errors"
	"path"
	"strconv"
	"strings"
)

var (
	ErrInvalidPath       = errors.New("invalid request path")
	ErrUnsupportedFormat = errors.New("unsupported target format")
)

// Format is a target image format.
type Format string

const (
	FormatWebp Format = "webp"
	FormatAvif Format = "avif"
	FormatJpeg Format = "jpeg"
	FormatPng  Format = "png"
	FormatGif  Format = "gif"
	FormatIco  Format = "ico"
)

var formatByExt = map[string]Format{
	"webp": FormatWebp,
	"avif": FormatAvif,
	"jpg":  FormatJpeg,
	"jpeg": FormatJpeg,
	"png":  FormatPng,
	"gif":  FormatGif,
	"ico":  FormatIco,
}

var mimeByFormat = map[Format]string{
	FormatWebp: "image/webp",
	FormatAvif: "image/avif",
	FormatJpeg: "image/jpeg",
	FormatPng:  "image/png",
	FormatGif:  "image/gif",
	FormatIco:  "image/x-icon",
}

// MIME returns the Content-Type for the format.
func (f Format) MIME() string {
	return mimeByFormat[f]
}

// Request is a parsed transform request. Width and Height are zero when
// the corresponding dimension was not requested.
type Request struct {
	Dir          string
	OriginalName string
	Width        int
	Height       int
	Format       Format
}

// SourcePath is the relative path of the original image the request
// refers to.
func (r Request) SourcePath() string {
	return path.Join(r.Dir, r.OriginalName)
}

// VariantPath is the canonical relative path of the requested variant,
// i.e. the request path itself re-rooted under the cache tree.
func (r Request) VariantPath() string {
	var b strings.Builder
	b.WriteString(r.OriginalName)
	b.WriteByte('@')
	if r.Width > 0 {
		b.WriteString(strconv.Itoa(r.Width))
		b.WriteByte('w')
	}
	if r.Width > 0 && r.Height > 0 {
		b.WriteByte('_')
	}
	if r.Height > 0 {
		b.WriteString(strconv.Itoa(r.Height))
		b.WriteByte('h')
	}
	b.WriteByte('.')
	b.WriteString(string(r.Format))
	return path.Join(r.Dir, b.String())
}

// Parse parses a request path into a Request. The path must already be
// URL-decoded and traversal-checked by the caller.
func Parse(requestPath string) (Request, error) {
	requestPath = strings.Trim(requestPath, "/")
	if requestPath == "" {
		return Request{}, ErrInvalidPath
	}

	dir, file := path.Split(requestPath)
	dir = strings.Trim(dir, "/")

	name, rest, ok := strings.Cut(file, "@")
	if !ok || name == "" {
		return Request{}, ErrInvalidPath
	}

	token, ext, ok := strings.Cut(rest, ".")
	if !ok || ext == "" {
		return Request{}, ErrInvalidPath
	}

	format, ok := formatByExt[strings.ToLower(ext)]
	if !ok {
		return Request{}, ErrUnsupportedFormat
	}

	width, height, err := parseSizeToken(token)
	if err != nil {
		return Request{}, err
	}

	return Request{
		Dir:          dir,
		OriginalName: name,
		Width:        width,
		Height:       height,
		Format:       format,
	}, nil
}

// parseSizeToken parses "", "{N}w", "{N}h" or "{N}w_{M}h".
func parseSizeToken(token string) (width, height int, err error) {
	if token == "" {
		return 0, 0, nil
	}

	for _, part := range strings.Split(token, "_") {
		n := len(part)
		if n < 2 {
			return 0, 0, ErrInvalidPath
		}
		value, convErr := strconv.Atoi(part[:n-1])
		if convErr != nil || value <= 0 {
			return 0, 0, ErrInvalidPath
		}
		switch part[n-1] {
		case 'w':
			// The grammar puts width before height.
			if width > 0 || height > 0 {
				return 0, 0, ErrInvalidPath
			}
			width = value
		case 'h':
			if height > 0 {
				return 0, 0, ErrInvalidPath
			}
			height = value
		default:
			return 0, 0, ErrInvalidPath
		}
	}

	if width == 0 && height == 0 {
		return 0, 0, ErrInvalidPath
	}
	return width, height, nil
}

// SplitVariant recovers the original filename from a cache-variant
// filename. It reports false when the filename is not a valid variant,
// which lets the sweeper skip unrelated files.
func SplitVariant(filename string) (original string, ok bool) {
	name, rest, found := strings.Cut(filename, "@")
	if !found || name == "" {
		return "", false
	}
	token, ext, found := strings.Cut(rest, ".")
	if !found || ext == "" {
		return "", false
	}
	if _, known := formatByExt[strings.ToLower(ext)]; !known {
		return "", false
	}
	if _, _, err := parseSizeToken(token); err != nil {
		return "", false
	}
	return name, true
}
