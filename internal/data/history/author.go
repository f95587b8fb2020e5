package history

import (
	"fmt"
	"log/slog"
	"sort"
)

// Author is one person seen under possibly several names and emails. The
// display identity is the most frequent name and email.
type Author struct {
	names  map[string]int
	emails map[string]int
	Stats  ChangeStats
}

func newAuthor() *Author {
	return &Author{names: make(map[string]int), emails: make(map[string]int)}
}

func (a *Author) observe(name, email string) {
	a.names[name]++
	a.emails[email]++
}

func (a *Author) Name() string  { return top(a.names) }
func (a *Author) Email() string { return top(a.emails) }

// Identity is the stable display key "name <email>".
func (a *Author) Identity() string {
	return fmt.Sprintf("%s <%s>", a.Name(), a.Email())
}

func (a *Author) Names() []string  { return sortedKeys(a.names) }
func (a *Author) Emails() []string { return sortedKeys(a.emails) }

func (a *Author) String() string {
	name, email := a.Name(), a.Email()
	if n := len(a.names); n > 1 {
		name += fmt.Sprintf("(+%d)", n-1)
	}
	if n := len(a.emails); n > 1 {
		email += fmt.Sprintf("(+%d)", n-1)
	}
	return fmt.Sprintf("%s<%s>[%d=%s]", name, email, a.Stats.Count, a.Stats)
}

// top breaks count ties alphabetically so identities are reproducible.
func top(counts map[string]int) string {
	best, bestN := "", -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AuthorBook merges commit identities: an incoming pair matches an author
// when either the name or the email has been seen for it.
type AuthorBook struct {
	authors []*Author
	logger  *slog.Logger
}

func NewAuthorBook(logger *slog.Logger) *AuthorBook {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorBook{logger: logger}
}

func (b *AuthorBook) Find(name, email string) *Author {
	for _, a := range b.authors {
		_, knownName := a.names[name]
		_, knownEmail := a.emails[email]
		if !knownName && !knownEmail {
			continue
		}
		if !knownName {
			b.logger.Warn("incomplete author match", "field", "name", "name", name, "known", a.Names())
		}
		if !knownEmail {
			b.logger.Warn("incomplete author match", "field", "email", "email", email, "known", a.Emails())
		}
		a.observe(name, email)
		return a
	}
	a := newAuthor()
	a.observe(name, email)
	b.authors = append(b.authors, a)
	return a
}

func (b *AuthorBook) Authors() []*Author {
	return append([]*Author(nil), b.authors...)
}
