package source

import (
	"bytes"
	"regexp"
	"strings"

	"materiality/internal/core/errors"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

const defaultEncoding = "utf-8"

var (
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
	codingPattern = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=][ \t]*([-\w.]+)`)
	blankOrNote   = regexp.MustCompile(`^[ \t\f]*(?:[#\r\n]|$)`)
)

var encodingAliases = map[string]string{
	"utf8":      defaultEncoding,
	"utf-8-sig": defaultEncoding,
	"ascii":     defaultEncoding,
	"us-ascii":  defaultEncoding,
	"latin-1":   "iso-8859-1",
	"latin1":    "iso-8859-1",
	"l1":        "iso-8859-1",
	"cp1252":    "windows-1252",
	"cp1251":    "windows-1251",
	"euc-jp":    "euc-jp",
	"shift-jis": "shift_jis",
	"sjis":      "shift_jis",
}

// Decode converts raw Python source to UTF-8, honouring a leading BOM and a
// PEP 263 coding declaration on the first or second line.
func Decode(raw []byte) ([]byte, string, error) {
	hasBOM := bytes.HasPrefix(raw, utf8BOM)
	if hasBOM {
		raw = raw[len(utf8BOM):]
	}

	declared := declaredEncoding(raw)
	name := normalizeEncoding(declared)
	if hasBOM {
		if declared != "" && name != defaultEncoding {
			return nil, "", errors.Newf(errors.CodeValidationError, "encoding problem: %s with BOM", declared)
		}
		return raw, defaultEncoding, nil
	}
	if name == "" || name == defaultEncoding {
		return raw, defaultEncoding, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, "", errors.Newf(errors.CodeNotSupported, "unknown source encoding %q", declared)
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CodeValidationError, "decode source as "+name)
	}
	return out, name, nil
}

func declaredEncoding(raw []byte) string {
	first, rest, _ := bytes.Cut(raw, []byte("\n"))
	if m := codingPattern.FindSubmatch(first); m != nil {
		return string(m[1])
	}
	if !blankOrNote.Match(first) {
		return ""
	}
	second, _, _ := bytes.Cut(rest, []byte("\n"))
	if m := codingPattern.FindSubmatch(second); m != nil {
		return string(m[1])
	}
	return ""
}

func normalizeEncoding(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "_", "-")
	if alias, ok := encodingAliases[name]; ok {
		return alias
	}
	if strings.HasPrefix(name, "utf-8-") {
		return defaultEncoding
	}
	return name
}
