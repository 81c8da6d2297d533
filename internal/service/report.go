package service

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"forum/crawler/internal/domain"

	"github.com/nao1215/markdown"
)

// WriteReport renders the crawl report as markdown.
func WriteReport(w io.Writer, report *domain.CrawlReport) error {
	md := markdown.NewMarkdown(w)

	md.H1("Crawl Report")
	md.PlainText("")
	md.BulletList(
		"Started: "+report.StartedAt.Format(time.RFC3339),
		"Duration: "+report.Duration().Round(time.Millisecond).String(),
		fmt.Sprintf("Skipped: %d, duplicates: %d, abandoned: %d", report.Skipped, report.Duplicates, report.Abandoned),
	)
	md.PlainText("")

	switch {
	case report.Interrupted:
		md.Warningf("The crawl was interrupted with %d unit(s) abandoned. Run it again to resume.", report.Abandoned)
	case report.Success() && len(report.Failures) == 0:
		md.Note("All boards finished without failures.")
	case report.Success():
		md.Importantf("At least one board finished without failures. Boards with failures: %s.",
			strings.Join(report.FailedBoards(), ", "))
	default:
		md.Cautionf("%d unit(s) failed and no board finished without failures.", len(report.Failures))
	}
	md.PlainText("")

	md.H2("Boards")
	md.PlainText("")
	rows := make([][]string, 0, len(report.PerBoard))
	for _, b := range report.PerBoard {
		rows = append(rows, []string{
			b.Board,
			b.State.String(),
			strconv.Itoa(b.PagesFetched),
			strconv.Itoa(b.PostsFetched),
			strconv.Itoa(b.PostsSkipped),
			strconv.Itoa(b.ImagesFetched),
			strconv.Itoa(b.Failed),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Board", "State", "Pages", "Posts", "Skipped", "Images", "Failed"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(report.Failures) > 0 {
		md.H2("Failures")
		md.PlainText("")
		failures := make([][]string, 0, len(report.Failures))
		for _, f := range report.Failures {
			failures = append(failures, []string{f.Board, f.Kind, string(f.Category), f.URL, f.Reason})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Board", "Kind", "Category", "URL", "Reason"},
			Rows:   failures,
		})
	}

	return md.Build()
}
