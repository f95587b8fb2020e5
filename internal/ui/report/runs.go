package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"materiality/internal/data/history"
)

func RenderRunTSV(runs []history.Run) ([]byte, error) {
	var buf strings.Builder

	buf.WriteString("Timestamp\tRun\tProject\tEntry\tFiles\tLines\tAuthors\tReachableChanges\tRepositoryChanges\tRatio\n")
	for _, run := range runs {
		buf.WriteString(fmt.Sprintf(
			"%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%.4f\n",
			run.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			run.ID,
			run.Project,
			run.Entry,
			run.Files,
			run.Lines,
			run.Authors,
			run.ReachableChanges,
			run.RepositoryChanges,
			run.Ratio,
		))
	}

	return []byte(buf.String()), nil
}

func RenderRunJSON(runs []history.Run) ([]byte, error) {
	return json.MarshalIndent(runs, "", "  ")
}
