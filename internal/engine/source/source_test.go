package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"materiality/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePlainUTF8(t *testing.T) {
	text, enc, err := Decode([]byte("x = 'é'\n"))
	require.NoError(t, err)
	assert.Equal(t, "utf-8", enc)
	assert.Equal(t, "x = 'é'\n", string(text))
}

func TestDecodeStripsBOM(t *testing.T) {
	text, enc, err := Decode(append([]byte{0xEF, 0xBB, 0xBF}, []byte("import os\n")...))
	require.NoError(t, err)
	assert.Equal(t, "utf-8", enc)
	assert.Equal(t, "import os\n", string(text))
}

func TestDecodeBOMConflictsWithDeclaration(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("# -*- coding: latin-1 -*-\n")...)
	_, _, err := Decode(raw)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestDecodeLatin1Declaration(t *testing.T) {
	raw := []byte("#!/usr/bin/env python\n# -*- coding: latin-1 -*-\nname = '")
	raw = append(raw, 0xE9)
	raw = append(raw, []byte("'\n")...)

	text, enc, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "iso-8859-1", enc)
	assert.Contains(t, string(text), "name = 'é'")
}

func TestDecodeIgnoresDeclarationAfterCode(t *testing.T) {
	_, enc, err := Decode([]byte("import os\n# coding: latin-1\n"))
	require.NoError(t, err)
	assert.Equal(t, "utf-8", enc)
}

func TestDecodeUnknownEncoding(t *testing.T) {
	_, _, err := Decode([]byte("# coding: klingon-9\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotSupported))
}

func TestParseUnit(t *testing.T) {
	unit, err := Parse("m.py", []byte("import os\n\ndef f():\n    return 1\n"))
	require.NoError(t, err)
	defer unit.Close()

	root := unit.Root()
	assert.Equal(t, "module", root.Kind())
	assert.False(t, unit.HasSyntaxErrors())
	assert.Equal(t, 4, unit.LineCount())
	assert.Equal(t, "import os", unit.Content(root.NamedChild(0)))
}

func TestParseRecoversFromSyntaxErrors(t *testing.T) {
	unit, err := Parse("bad.py", []byte("def (:\n"))
	require.NoError(t, err)
	defer unit.Close()
	assert.True(t, unit.HasSyntaxErrors())
}

func TestProviderCachesDecodedText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.py")
	require.NoError(t, os.WriteFile(path, []byte("a = 1\n"), 0o644))

	p, err := NewProvider(4)
	require.NoError(t, err)

	unit, err := p.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "a = 1\n", string(unit.Text))
	unit.Close()
	assert.True(t, p.Cached(path))

	require.NoError(t, os.WriteFile(path, []byte("a = 22\n"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	unit, err = p.Load(path)
	require.NoError(t, err)
	defer unit.Close()
	assert.Equal(t, "a = 22\n", string(unit.Text))
}

func TestProviderMissingFile(t *testing.T) {
	p, err := NewProvider(0)
	require.NoError(t, err)
	_, err = p.Load(filepath.Join(t.TempDir(), "missing.py"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}
