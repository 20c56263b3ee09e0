// Package scrape drives a portal session through the fetch, download and
// message flows and writes what it extracts to the store.
package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/kalambet/bidfetch/internal/portal"
	"github.com/kalambet/bidfetch/internal/storage"
)

var tracer = otel.Tracer("internal/scrape")

// Session is the browser capability the orchestrator needs.
type Session interface {
	Open(ctx context.Context) error
	Authenticate(ctx context.Context, creds portal.Credentials) error
	GotoListView(ctx context.Context) error
	SearchList(ctx context.Context, poNumber string) (portal.Snapshot, error)
	GotoDetailView(ctx context.Context, poNumber string) (portal.Snapshot, error)
	OpenItemDetail(ctx context.Context, requestID, itemSuffixID string) (portal.Snapshot, error)
	Download(ctx context.Context, url string) ([]byte, error)
	GotoMessages(ctx context.Context) (portal.Snapshot, error)
	OpenMessageDetail(ctx context.Context, refNumber string) (portal.Popup, error)
	Close() error
}

// Store is the subset of the record store written during a scrape.
type Store interface {
	SavePOHeader(h storage.POHeader) error
	AddLineItems(items []storage.LineItem) error
	AddDownloadHistory(h storage.DownloadHistory) error
	SaveMessage(m storage.Message) error
	RegisterItemNumber(itemNumber string) (bool, error)
}

// State is a step of a scrape run.
type State string

const (
	StateInitializing   State = "initializing"
	StateAuthenticating State = "authenticating"
	StateListing        State = "listing"
	StateFetching       State = "fetching"
	StateDownloading    State = "downloading"
	StateReporting      State = "reporting"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Observer receives state changes and per-identifier results as they happen.
type Observer interface {
	Step(state State, identifier, progress string)
	Result(r Result)
}

type nopObserver struct{}

func (nopObserver) Step(State, string, string) {}
func (nopObserver) Result(Result)              {}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusNoItems = "no_items"
)

// Result is the outcome for one PO number or message reference.
type Result struct {
	Identifier      string           `json:"identifier"`
	Status          string           `json:"status"`
	ItemsFound      int              `json:"items_found"`
	ItemsProcessed  int              `json:"items_processed,omitempty"`
	FilesDownloaded int              `json:"files_downloaded,omitempty"`
	TotalSize       int64            `json:"total_size,omitempty"`
	Files           []DownloadedFile `json:"files,omitempty"`
	Errors          []ItemError      `json:"errors,omitempty"`
	Error           string           `json:"error,omitempty"`
}

type DownloadedFile struct {
	ItemNumber string `json:"item_number"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	Pages      int    `json:"pages,omitempty"`
}

// ItemError is a failure confined to one item of a PO.
type ItemError struct {
	ItemNumber string `json:"item_number,omitempty"`
	Reason     string `json:"reason"`
}

// Options configures an Orchestrator.
type Options struct {
	Credentials  portal.Credentials
	DownloadDir  string
	MessageLimit int
	RunID        string
	Observer     Observer
	Logger       *slog.Logger
}

// Orchestrator runs one batch against one session. It is single use and
// closes the session when the batch ends.
type Orchestrator struct {
	session Session
	store   Store
	opts    Options
	obs     Observer
	logger  *slog.Logger
}

func New(session Session, store Store, opts Options) *Orchestrator {
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		session: session,
		store:   store,
		opts:    opts,
		obs:     obs,
		logger:  logger.With("component", "scrape", "run_id", opts.RunID),
	}
}

// start opens the browser and logs in. Its errors are batch-fatal.
func (o *Orchestrator) start(ctx context.Context) error {
	o.obs.Step(StateInitializing, "", "Starting browser")
	if err := o.session.Open(ctx); err != nil {
		return err
	}
	o.obs.Step(StateAuthenticating, "", "Logging in")
	if err := o.session.Authenticate(ctx, o.opts.Credentials); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) finish(err error) {
	if cerr := o.session.Close(); cerr != nil {
		o.logger.Warn("closing session", "error", cerr)
	}
	if err != nil {
		o.obs.Step(StateFailed, "", err.Error())
		return
	}
	o.obs.Step(StateDone, "", "Completed")
}

func (o *Orchestrator) record(results []Result, r Result) []Result {
	o.obs.Result(r)
	return append(results, r)
}

func progress(verb, id string, i, n int) string {
	return fmt.Sprintf("%s %s (%d/%d)", verb, id, i+1, n)
}
