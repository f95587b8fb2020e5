package resolver

import (
	_ "embed"
	"strings"
)

//go:embed builtin.txt
var builtinData string

//go:embed stdlib.txt
var stdlibData string

var (
	builtinModules = parseModuleList(builtinData)
	stdlibModules  = parseModuleList(stdlibData)
)

func parseModuleList(data string) map[string]bool {
	out := make(map[string]bool)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[line] = true
	}
	return out
}

// DefaultBuiltins lists the embedded builtin module names.
func DefaultBuiltins() []string {
	out := make([]string, 0, len(builtinModules))
	for name := range builtinModules {
		out = append(out, name)
	}
	return out
}

// IsStandardLibrary reports whether the top-level package of name ships with
// CPython, builtins included.
func IsStandardLibrary(name string) bool {
	head, _, _ := strings.Cut(name, ".")
	return stdlibModules[head] || builtinModules[head]
}
