package history

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"materiality/internal/core/errors"
)

const (
	commitMarker = "COMMIT\x1f"
	logFormat    = "--format=COMMIT%x1f%H%x1f%an%x1f%ae%x1f%aI"
)

// Miner reads history with the git CLI.
type Miner struct {
	Binary     string
	MaxCommits int
}

func NewMiner(binary string, maxCommits int) *Miner {
	if binary == "" {
		binary = "git"
	}
	return &Miner{Binary: binary, MaxCommits: maxCommits}
}

func (m *Miner) git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, m.Binary, append([]string{"-C", dir}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeHistoryUnavailable, "git "+args[0]), errors.CtxPath, dir)
	}
	return out, nil
}

// Head returns the commit the work tree is on.
func (m *Miner) Head(ctx context.Context, dir string) (string, error) {
	out, err := m.git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Mine runs one log pass over the repository at dir.
func (m *Miner) Mine(ctx context.Context, dir string) ([]Commit, error) {
	args := []string{"log", "--no-merges", "--numstat", logFormat}
	if m.MaxCommits > 0 {
		args = append(args, "-n", strconv.Itoa(m.MaxCommits))
	}
	out, err := m.git(ctx, dir, args...)
	if err != nil {
		return nil, err
	}
	return ParseLog(out)
}

// ParseLog parses output produced with logFormat and --numstat.
func ParseLog(data []byte) ([]Commit, error) {
	var commits []Commit
	var cur *Commit
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, commitMarker) {
			fields := strings.Split(strings.TrimPrefix(line, commitMarker), "\x1f")
			if len(fields) != 4 {
				return nil, errors.Newf(errors.CodeValidationError, "malformed commit header on line %d", lineNo)
			}
			when, err := time.Parse(time.RFC3339, fields[3])
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("commit date on line %d", lineNo))
			}
			commits = append(commits, Commit{Hash: fields[0], AuthorName: fields[1], AuthorEmail: fields[2], When: when})
			cur = &commits[len(commits)-1]
			continue
		}
		if cur == nil {
			continue
		}
		fc, ok := parseNumstat(line)
		if ok {
			cur.Files = append(cur.Files, fc)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "scan git log")
	}
	return commits, nil
}

// parseNumstat reads "added<TAB>removed<TAB>path"; binary rows use "-".
func parseNumstat(line string) (FileChange, bool) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return FileChange{}, false
	}
	added, errA := strconv.Atoi(parts[0])
	removed, errR := strconv.Atoi(parts[1])
	if errA != nil || errR != nil {
		return FileChange{}, false
	}
	path, old := splitRename(parts[2])
	return FileChange{Path: path, OldPath: old, Added: added, Removed: removed}, true
}

// splitRename expands "old => new" and "dir/{old => new}/file" into the new
// and old paths. Plain paths return an empty old path.
func splitRename(spec string) (string, string) {
	if !strings.Contains(spec, " => ") {
		return spec, ""
	}
	open := strings.Index(spec, "{")
	closing := strings.LastIndex(spec, "}")
	if open >= 0 && closing > open {
		prefix, inner, suffix := spec[:open], spec[open+1:closing], spec[closing+1:]
		from, to, _ := strings.Cut(inner, " => ")
		return joinRenamePart(prefix, to, suffix), joinRenamePart(prefix, from, suffix)
	}
	from, to, _ := strings.Cut(spec, " => ")
	return to, from
}

func joinRenamePart(prefix, middle, suffix string) string {
	if middle == "" {
		return strings.Replace(prefix+suffix, "//", "/", 1)
	}
	return prefix + middle + suffix
}
