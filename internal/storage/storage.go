// Package storage persists selected logos. Backends implement BlobStore;
// Archive names objects and writes them.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/JakeFAU/logohunter/internal/candidate"
)

var (
	// ErrEmptyPath is returned when an object path is blank.
	ErrEmptyPath = errors.New("object path is required")
	// ErrNotFound is returned by readers for a missing object.
	ErrNotFound = errors.New("object not found")
)

// BlobStore writes an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher digests logo bytes for content-addressed names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Archive stores logos under <prefix>/<domain>/.
type Archive struct {
	store  BlobStore
	hasher Hasher
	prefix string
}

// NewArchive wraps store. With a nil hasher every logo is written to
// logo.<ext> and overwrites the previous one.
func NewArchive(store BlobStore, hasher Hasher, prefix string) *Archive {
	return &Archive{store: store, hasher: hasher, prefix: strings.Trim(prefix, "/")}
}

// Object describes a stored logo.
type Object struct {
	Key string `json:"key"`
	URI string `json:"uri"`
}

// Save writes data for domain and returns where it went.
func (a *Archive) Save(ctx context.Context, domain string, data []byte, format candidate.Format) (Object, error) {
	key, err := a.Key(domain, data, format)
	if err != nil {
		return Object{}, err
	}
	uri, err := a.store.PutObject(ctx, key, format.ContentType(), bytes.NewReader(data))
	if err != nil {
		return Object{}, fmt.Errorf("store logo for %s: %w", domain, err)
	}
	return Object{Key: key, URI: uri}, nil
}

// Key returns the object path Save would use.
func (a *Archive) Key(domain string, data []byte, format candidate.Format) (string, error) {
	domain = sanitizeSegment(domain)
	if domain == "" {
		return "", ErrEmptyPath
	}
	name := "logo"
	if a.hasher != nil {
		digest, err := a.hasher.Hash(data)
		if err != nil {
			return "", fmt.Errorf("hash logo: %w", err)
		}
		name = "logo-" + digest
	}
	ext := format.Extension()
	if ext == "" {
		ext = "bin"
	}
	return path.Join(a.prefix, domain, name+"."+ext), nil
}

// sanitizeSegment keeps a host name usable as a single path segment.
func sanitizeSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ':':
			return '_'
		default:
			return -1
		}
	}, strings.Trim(s, "."))
}
