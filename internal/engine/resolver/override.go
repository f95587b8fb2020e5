package resolver

import (
	"path/filepath"
	"sort"
	"strings"

	"materiality/internal/shared/util"
)

// Override redirects a dotted package prefix to a checkout of another
// project, so its code and history are analysed from source.
type Override struct {
	Prefix      string
	Project     string
	Root        string
	Entry       string
	HistoryRoot string
}

func (o Override) EntryPath() string {
	return filepath.Join(o.Root, filepath.FromSlash(o.Entry))
}

func (o Override) HistoryDir() string {
	return filepath.Join(o.Root, filepath.FromSlash(o.HistoryRoot))
}

// PathFor maps a dotted name under Prefix onto the override checkout. The
// remainder is looked up beneath the entry's package directory; when no such
// file exists the entry itself stands in.
func (o Override) PathFor(name string) (string, bool) {
	entry := o.EntryPath()
	rest := strings.TrimPrefix(strings.TrimPrefix(name, o.Prefix), ".")
	if rest == "" || filepath.Base(entry) != "__init__.py" {
		return entry, rest == ""
	}
	base := filepath.Join(filepath.Dir(entry), filepath.FromSlash(strings.ReplaceAll(rest, ".", "/")))
	if file := base + ".py"; util.IsFile(file) {
		return file, true
	}
	if init := filepath.Join(base, "__init__.py"); util.IsFile(init) {
		return init, true
	}
	return entry, false
}

type Overrides struct {
	byPrefix map[string]Override
}

func NewOverrides(list []Override) *Overrides {
	t := &Overrides{byPrefix: make(map[string]Override, len(list))}
	for _, o := range list {
		t.byPrefix[o.Prefix] = o
	}
	return t
}

// First walks prefixes shortest first (a, a.b, a.b.c) and returns the first
// configured one.
func (t *Overrides) First(name string) (Override, bool) {
	if t == nil || len(t.byPrefix) == 0 {
		return Override{}, false
	}
	parts := strings.Split(name, ".")
	for i := 1; i <= len(parts); i++ {
		if o, ok := t.byPrefix[strings.Join(parts[:i], ".")]; ok {
			return o, true
		}
	}
	return Override{}, false
}

// Longest returns the override with the longest prefix of name.
func (t *Overrides) Longest(name string) (Override, bool) {
	if t == nil || len(t.byPrefix) == 0 {
		return Override{}, false
	}
	parts := strings.Split(name, ".")
	for i := len(parts); i > 0; i-- {
		if o, ok := t.byPrefix[strings.Join(parts[:i], ".")]; ok {
			return o, true
		}
	}
	return Override{}, false
}

func (t *Overrides) All() []Override {
	if t == nil {
		return nil
	}
	out := make([]Override, 0, len(t.byPrefix))
	for _, o := range t.byPrefix {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}
