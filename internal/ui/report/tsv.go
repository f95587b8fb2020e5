package report

import (
	"fmt"
	"io"
	"strings"

	"materiality/internal/engine/stattree"
)

// WriteAuthorTSV writes one row per (project, author).
func WriteAuthorTSV(w io.Writer, rows []stattree.AuthorRow) error {
	_, err := io.WriteString(w, RenderAuthorTSV(rows))
	return err
}

func RenderAuthorTSV(rows []stattree.AuthorRow) string {
	var buf strings.Builder

	buf.WriteString("Project\tAuthor\tReachableCount\tReachableAdded\tReachableRemoved\tReachableDelta\tRepositoryCount\tRepositoryAdded\tRepositoryRemoved\tRepositoryDelta\n")
	for _, row := range rows {
		buf.WriteString(fmt.Sprintf("%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			row.Project,
			row.Author,
			row.Reachable.Count,
			row.Reachable.Added,
			row.Reachable.Removed,
			row.Reachable.Delta(),
			row.Repository.Count,
			row.Repository.Added,
			row.Repository.Removed,
			row.Repository.Delta(),
		))
	}

	return buf.String()
}
