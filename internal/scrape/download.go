package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/bidfetch/internal/extract"
	"github.com/kalambet/bidfetch/internal/storage"
)

// ErrNoArtwork marks an item whose detail page has no artwork download.
var ErrNoArtwork = errors.New("no artwork found")

// ReportFile is written to the download directory after every download batch.
const ReportFile = "download-report.json"

// DownloadAll captures each PO like FetchAll and then downloads the artwork
// of every item into <download dir>/<po>/.
func (o *Orchestrator) DownloadAll(ctx context.Context, poNumbers []string) (results []Result, err error) {
	defer func() { o.finish(err) }()

	if err := o.start(ctx); err != nil {
		return nil, err
	}
	results, err = o.eachPO(ctx, poNumbers, StateDownloading, "Downloading", o.downloadPO)

	o.obs.Step(StateReporting, "", "Writing download report")
	if rerr := WriteReport(o.opts.DownloadDir, o.opts.RunID, results); rerr != nil {
		o.logger.Warn("download report not written", "error", rerr)
	}
	return results, err
}

func (o *Orchestrator) downloadPO(ctx context.Context, po string) Result {
	res := Result{Identifier: po, Status: StatusSuccess}

	detail, n, err := o.capture(ctx, po, false)
	res.ItemsFound = n
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		res.Errors = append(res.Errors, ItemError{Reason: err.Error()})
		return res
	}

	links, err := extract.ItemLinks(detail.HTML)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}
	res.ItemsProcessed = len(links)
	if len(links) == 0 {
		res.Status = StatusNoItems
	}

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, ItemError{ItemNumber: link.ItemNumber, Reason: err.Error()})
			break
		}
		f, err := o.downloadItem(ctx, po, link)
		if err != nil {
			o.logger.Info("item skipped", "po_number", po, "item_number", link.ItemNumber, "reason", err)
			res.Errors = append(res.Errors, ItemError{ItemNumber: link.ItemNumber, Reason: err.Error()})
			continue
		}
		res.FilesDownloaded++
		res.TotalSize += f.Size
		res.Files = append(res.Files, f)
	}

	o.logger.Info("po downloaded", "po_number", po, "files", res.FilesDownloaded, "size", humanize.Bytes(uint64(res.TotalSize)), "skipped", len(res.Errors))

	if err := o.store.AddDownloadHistory(storage.DownloadHistory{
		PONumber:        po,
		FilesDownloaded: res.FilesDownloaded,
		TotalSize:       res.TotalSize,
		Status:          res.Status,
	}); err != nil {
		o.logger.Warn("download history not saved", "po_number", po, "error", err)
	}
	return res
}

func (o *Orchestrator) downloadItem(ctx context.Context, po string, link extract.ItemLink) (DownloadedFile, error) {
	page, err := o.session.OpenItemDetail(ctx, link.RequestID, link.ItemSuffixID)
	if err != nil {
		return DownloadedFile{}, err
	}
	artwork, ok := extract.ArtworkLink(page.HTML)
	if !ok {
		return DownloadedFile{}, ErrNoArtwork
	}

	data, err := o.session.Download(ctx, artwork)
	if err != nil {
		return DownloadedFile{}, err
	}

	dir := filepath.Join(o.opts.DownloadDir, po)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return DownloadedFile{}, fmt.Errorf("creating %s: %w", dir, err)
	}
	name := artworkName(artwork, link.ItemNumber)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return DownloadedFile{}, fmt.Errorf("writing %s: %w", name, err)
	}

	f := DownloadedFile{ItemNumber: link.ItemNumber, Filename: name, Size: int64(len(data))}
	if isPDF(name, data) {
		f.Pages = pdfPages(data)
	}
	return f, nil
}

// artworkName is the last path segment of the artwork URL, or the item
// number when the URL has none.
func artworkName(ref, itemNumber string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
	}
	name := path.Base(strings.ReplaceAll(p, `\`, "/"))
	if name == "" || name == "." || name == "/" {
		name = itemNumber
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, name)
}

func isPDF(name string, data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF")) || strings.EqualFold(filepath.Ext(name), ".pdf")
}

// pdfPages returns the page count of a PDF, or 0 when it cannot be read.
func pdfPages(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}

// Report is the JSON document written after a download batch.
type Report struct {
	RunID       string       `json:"run_id,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Totals      ReportTotals `json:"totals"`
	Results     []Result     `json:"results"`
}

type ReportTotals struct {
	POs           int   `json:"pos"`
	SuccessfulPOs int   `json:"successful_pos"`
	Files         int   `json:"files"`
	TotalSize     int64 `json:"total_size"`
	Errors        int   `json:"errors"`
}

// Summarize totals a batch. A PO counts as successful only when it
// downloaded at least one file.
func Summarize(results []Result) ReportTotals {
	t := ReportTotals{POs: len(results)}
	for _, r := range results {
		if r.Status == StatusSuccess && r.FilesDownloaded > 0 {
			t.SuccessfulPOs++
		}
		t.Files += r.FilesDownloaded
		t.TotalSize += r.TotalSize
		t.Errors += len(r.Errors)
	}
	return t
}

// WriteReport writes results to <dir>/download-report.json.
func WriteReport(dir, runID string, results []Result) error {
	if dir == "" {
		return errors.New("download directory is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if results == nil {
		results = []Result{}
	}
	data, err := json.MarshalIndent(Report{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Totals:      Summarize(results),
		Results:     results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ReportFile), data, 0o644)
}
