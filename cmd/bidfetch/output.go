package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kalambet/bidfetch/internal/jobs"
	"github.com/kalambet/bidfetch/internal/scrape"
	"github.com/kalambet/bidfetch/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row(header))
	return t
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func statusColor(status string) string {
	switch status {
	case scrape.StatusSuccess, string(jobs.StatusCompleted):
		return colorize(colorGreen, status)
	case scrape.StatusFailed:
		return colorize(colorRed, status)
	case scrape.StatusNoItems, string(jobs.StatusProcessing):
		return colorize(colorYellow, status)
	}
	return status
}

func renderOrders(w io.Writer, orders []storage.POHeader) {
	t := newTable(w, "PO", "Status", "Vendor", "Cancel date", "Total", "Updated")
	for _, o := range orders {
		total := ""
		if o.TotalAmount != nil {
			total = fmt.Sprintf("%s %s", humanize.CommafWithDigits(*o.TotalAmount, 2), o.Currency)
		}
		t.AppendRow(table.Row{o.PONumber, o.Status, truncate(o.VendorName, 32), o.CancelDate, strings.TrimSpace(total), humanize.Time(o.UpdatedAt)})
	}
	t.Render()
}

func renderLineItems(w io.Writer, items []storage.LineItem) {
	t := newTable(w, "Item", "Description", "Color", "Qty", "Unit price", "Extension", "Need by")
	for _, it := range items {
		t.AppendRow(table.Row{
			it.ItemNumber,
			truncate(it.Description, 40),
			it.Color,
			humanize.Comma(int64(it.Qty)),
			humanize.CommafWithDigits(it.UnitPrice, 4),
			humanize.CommafWithDigits(it.Extension, 2),
			it.NeedBy,
		})
	}
	t.Render()
}

func renderDownloads(w io.Writer, history []storage.DownloadHistory) {
	t := newTable(w, "Downloaded", "Files", "Size", "Status")
	for _, h := range history {
		t.AppendRow(table.Row{humanize.Time(h.DownloadedAt), h.FilesDownloaded, humanize.Bytes(uint64(h.TotalSize)), statusColor(h.Status)})
	}
	t.Render()
}

func renderJobs(w io.Writer, list []jobs.Snapshot) {
	t := newTable(w, "Job", "Kind", "Status", "Identifiers", "Progress", "Started")
	for _, j := range list {
		t.AppendRow(table.Row{j.ID, j.Kind, statusColor(string(j.Status)), truncate(strings.Join(j.Identifiers, ","), 30), truncate(j.Progress, 40), humanize.Time(j.StartedAt)})
	}
	t.Render()
}

func renderResults(w io.Writer, results []scrape.Result) {
	t := newTable(w, "Identifier", "Status", "Items", "Files", "Size", "Error")
	var files int
	var size int64
	for _, r := range results {
		msg := r.Error
		if msg == "" && len(r.Errors) > 0 {
			msg = fmt.Sprintf("%d item(s) skipped", len(r.Errors))
		}
		t.AppendRow(table.Row{r.Identifier, statusColor(r.Status), r.ItemsFound, r.FilesDownloaded, humanize.Bytes(uint64(r.TotalSize)), truncate(msg, 50)})
		files += r.FilesDownloaded
		size += r.TotalSize
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d result(s)", len(results)), "", "", files, humanize.Bytes(uint64(size)), ""})
	t.Render()
}

func renderMessages(w io.Writer, msgs []storage.Message) {
	t := newTable(w, "ID", "Ref", "Author", "Received", "Subject")
	for _, m := range msgs {
		t.AppendRow(table.Row{m.ID, m.RefNumber, truncate(m.Author, 24), m.ReceivedDate, truncate(m.Subject, 48)})
	}
	t.Render()
}

func renderItems(w io.Writer, items []storage.ItemIndexEntry) {
	t := newTable(w, "ID", "Item", "Prefix", "Suffix", "Seq")
	for _, e := range items {
		suffix, seq := "", ""
		if e.Suffix != nil {
			suffix = *e.Suffix
		}
		if e.InternalSeq != nil {
			seq = *e.InternalSeq
		}
		t.AppendRow(table.Row{e.ID, e.ItemNumber(), e.Item1, suffix, seq})
	}
	t.Render()
}
