package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/bidfetch/internal/config"
	"github.com/kalambet/bidfetch/internal/extract"
	"github.com/kalambet/bidfetch/internal/portal"
)

// Kind selects the flow a Runner executes.
type Kind string

const (
	KindFetch    Kind = "fetch"
	KindDownload Kind = "download"
	KindMessages Kind = "messages"
)

func (k Kind) Valid() bool {
	switch k {
	case KindFetch, KindDownload, KindMessages:
		return true
	}
	return false
}

// Params are the inputs of one run. PONumbers drive fetch and download,
// Date drives messages and defaults to today.
type Params struct {
	PONumbers []string `json:"po_numbers,omitempty"`
	Date      string   `json:"date,omitempty"`
}

// Identifiers is what a job reports as its work list.
func (p Params) Identifiers() []string {
	if len(p.PONumbers) > 0 {
		return append([]string(nil), p.PONumbers...)
	}
	if p.Date != "" {
		return []string{p.Date}
	}
	return nil
}

// SessionFactory builds a fresh portal session for one run.
type SessionFactory func(cfg config.Config, logger *slog.Logger) Session

// PortalSession is the SessionFactory backed by a real browser.
func PortalSession(cfg config.Config, logger *slog.Logger) Session {
	return portal.New(portal.Options{
		LoginURL:      cfg.Portal.LoginURL,
		BaseURL:       cfg.Portal.BaseURL,
		PODetailURL:   cfg.Portal.PODetailURL,
		ItemDetailURL: cfg.Portal.ItemDetailURL,
		Headless:      cfg.Scrape.Headless,
		Timeout:       cfg.Scrape.Timeout(),
		Logger:        logger,
	})
}

// Runner runs one job: it snapshots the configuration, builds a session and
// an orchestrator, and dispatches on the job kind.
type Runner struct {
	store      Store
	loadConfig func() (config.Config, error)
	newSession SessionFactory
	now        func() time.Time
	logger     *slog.Logger
}

func NewRunner(store Store, loadConfig func() (config.Config, error), newSession SessionFactory, logger *slog.Logger) *Runner {
	if newSession == nil {
		newSession = PortalSession
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:      store,
		loadConfig: loadConfig,
		newSession: newSession,
		now:        time.Now,
		logger:     logger,
	}
}

// Run executes kind with params. The returned results are kept even when
// err is non-nil.
func (r *Runner) Run(ctx context.Context, kind Kind, params Params, runID string, obs Observer) ([]Result, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	creds := portal.Credentials{Username: cfg.Portal.Username, Password: cfg.Portal.Password}
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: set portal.username and portal.password", portal.ErrAuthentication)
	}

	logger := r.logger.With("kind", string(kind))
	o := New(r.newSession(cfg, logger), r.store, Options{
		Credentials:  creds,
		DownloadDir:  cfg.Scrape.DownloadDir,
		MessageLimit: cfg.Scrape.MessageLimit,
		RunID:        runID,
		Observer:     obs,
		Logger:       logger,
	})

	switch kind {
	case KindFetch:
		return o.FetchAll(ctx, params.PONumbers)
	case KindDownload:
		return o.DownloadAll(ctx, params.PONumbers)
	case KindMessages:
		date := params.Date
		if date == "" {
			date = extract.DateToken(r.now())
		}
		return o.FetchMessages(ctx, date)
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}
