package source

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"materiality/internal/core/errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 512

type cachedText struct {
	modTime  time.Time
	size     int64
	text     []byte
	encoding string
}

// Provider reads, decodes and parses files. Decoded text is cached by path and
// invalidated when size or mtime change; trees are never shared.
type Provider struct {
	texts *lru.Cache[string, cachedText]
}

func NewProvider(cacheSize int) (*Provider, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, cachedText](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create source cache")
	}
	return &Provider{texts: cache}, nil
}

func (p *Provider) Load(path string) (*Unit, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "resolve source path")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "stat source"), errors.CtxPath, abs)
	}

	entry, ok := p.texts.Get(abs)
	if !ok || entry.size != info.Size() || !entry.modTime.Equal(info.ModTime()) {
		raw, err := os.ReadFile(abs)
		if err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read source"), errors.CtxPath, abs)
		}
		text, encoding, err := Decode(raw)
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxPath, abs)
		}
		entry = cachedText{modTime: info.ModTime(), size: info.Size(), text: text, encoding: encoding}
		p.texts.Add(abs, entry)
	}

	unit, err := Parse(abs, entry.text)
	if err != nil {
		return nil, err
	}
	unit.Encoding = entry.encoding
	if unit.HasSyntaxErrors() {
		slog.Warn("source has syntax errors, indexing recovered tree", "path", abs)
	}
	return unit, nil
}

// Cached reports whether path currently has decoded text in the cache.
func (p *Provider) Cached(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return p.texts.Contains(abs)
}
