package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/playwright-community/playwright-go"

	"github.com/kalambet/bidfetch/internal/telemetry"
)

// Options configures one portal session.
type Options struct {
	LoginURL      string
	BaseURL       string
	PODetailURL   string
	ItemDetailURL string
	Headless      bool
	Timeout       time.Duration
	Logger        *slog.Logger
}

// Credentials is the portal account used to authenticate.
type Credentials struct {
	Username string
	Password string
}

// Snapshot is the rendered HTML of a page or frame and the URL it was taken at.
type Snapshot struct {
	URL  string
	HTML string
}

// Popup is a window opened by the portal. The opener must Close it.
type Popup interface {
	URL() string
	HTML() (string, error)
	Close() error
}

var installOnce sync.Once

// Session owns one browser, one context and its main page. It is not safe
// for concurrent use.
type Session struct {
	opts   Options
	logger *slog.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	nav     Navigator
	content Frame
	home    string
	http    *resty.Client
}

func New(opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{opts: opts, logger: logger.With("component", "portal")}
}

func (s *Session) timeoutMs() *float64 {
	return playwright.Float(float64(s.opts.Timeout.Milliseconds()))
}

// Open starts the driver, launches Chromium and opens the main page.
func (s *Session) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	installOnce.Do(func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			s.logger.Warn("playwright install failed", "error", err)
		}
	})

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("starting playwright: %w: %w", ErrLaunch, err)
	}
	s.pw = pw

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.opts.Headless),
		Timeout:  s.timeoutMs(),
	})
	if err != nil {
		s.Close()
		return fmt.Errorf("launching chromium: %w: %w", ErrLaunch, err)
	}
	s.browser = browser

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads: playwright.Bool(true),
	})
	if err != nil {
		s.Close()
		return fmt.Errorf("creating browser context: %w: %w", ErrLaunch, err)
	}
	s.bctx = bctx

	page, err := bctx.NewPage()
	if err != nil {
		s.Close()
		return fmt.Errorf("opening page: %w: %w", ErrLaunch, err)
	}
	page.SetDefaultTimeout(float64(s.opts.Timeout.Milliseconds()))
	s.page = page
	s.nav = &pageNavigator{page: page, timeout: s.opts.Timeout}
	s.http = resty.New().SetTimeout(s.opts.Timeout)
	telemetry.InstrumentResty(s.http, "internal/portal")

	s.logger.Debug("browser ready", "headless", s.opts.Headless)
	return nil
}

func (s *Session) settle(page playwright.Page) error {
	return page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: s.timeoutMs(),
	})
}

func (s *Session) navigate(page playwright.Page, url string) error {
	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   s.timeoutMs(),
	})
	return err
}

// Authenticate submits the login form and checks that the portal moved away
// from the login page.
func (s *Session) Authenticate(ctx context.Context, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("%w: portal credentials are not configured", ErrAuthentication)
	}

	if err := s.navigate(s.page, s.opts.LoginURL); err != nil {
		return wrap("loading login page", ErrAuthentication, err)
	}
	user := s.page.Locator(loginUserInput)
	if err := user.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: s.timeoutMs(),
	}); err != nil {
		return wrap("waiting for login form", ErrAuthentication, err)
	}
	if err := user.Fill(creds.Username); err != nil {
		return wrap("filling username", ErrAuthentication, err)
	}
	if err := s.page.Locator(loginPasswordInput).Fill(creds.Password); err != nil {
		return wrap("filling password", ErrAuthentication, err)
	}
	if err := s.page.Locator(loginTrigger).Click(); err != nil {
		return wrap("submitting login", ErrAuthentication, err)
	}
	if err := s.settle(s.page); err != nil {
		return wrap("waiting after login", ErrAuthentication, err)
	}

	if isLoginURL(s.page.URL(), s.opts.LoginURL) {
		return fmt.Errorf("%w: still on login page", ErrAuthentication)
	}
	s.home = s.page.URL()
	s.logger.Info("logged in", "user", creds.Username)
	return nil
}

// openView reloads the frameset the portal landed on after login, then
// follows route. Detail pages replace the frameset, so the menu is only
// reachable again from home.
func (s *Session) openView(ctx context.Context, route MenuRoute) (Frame, error) {
	if s.home != "" {
		if err := s.nav.Load(ctx, s.home); err != nil {
			return nil, wrap("reloading portal home", ErrNavigation, err)
		}
	}
	return followMenu(ctx, s.nav, route)
}

// GotoListView opens the purchase order list in the content frame.
func (s *Session) GotoListView(ctx context.Context) error {
	f, err := s.openView(ctx, listRoute)
	if err != nil {
		return err
	}
	s.content = f
	return nil
}

// SearchList searches the list view for poNumber and returns the results grid.
func (s *Session) SearchList(ctx context.Context, poNumber string) (Snapshot, error) {
	if s.content == nil {
		if err := s.GotoListView(ctx); err != nil {
			return Snapshot{}, err
		}
	}
	f, ok := s.content.(playwright.Frame)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: content frame is not a browser frame", ErrNavigation)
	}
	if err := f.Locator(listSearchInput).Fill(poNumber); err != nil {
		return Snapshot{}, wrap("filling list search", ErrNavigation, err)
	}
	if err := f.Locator(listSearchButton).Click(); err != nil {
		return Snapshot{}, wrap("submitting list search", ErrNavigation, err)
	}
	if err := s.nav.Settle(ctx, f); err != nil {
		return Snapshot{}, wrap("waiting for search results", ErrNavigation, err)
	}
	html, err := f.Content()
	if err != nil {
		return Snapshot{}, wrap("reading search results", ErrNavigation, err)
	}
	return Snapshot{URL: f.URL(), HTML: html}, nil
}

// GotoDetailView loads the PO detail page directly by URL into the main
// page. The content frame is gone afterwards; GotoListView restores it.
func (s *Session) GotoDetailView(ctx context.Context, poNumber string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	target, err := detailURL(s.opts.PODetailURL, poNumber)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	s.content = nil
	if err := s.navigate(s.page, target); err != nil {
		return Snapshot{}, wrap("loading po "+poNumber, ErrNavigation, err)
	}
	if !echoesPO(s.page.URL(), poNumber) {
		return Snapshot{}, fmt.Errorf("%w: po %s: landed on %s", ErrNavigation, poNumber, s.page.URL())
	}
	html, err := s.page.Content()
	if err != nil {
		return Snapshot{}, wrap("reading po "+poNumber, ErrNavigation, err)
	}
	return Snapshot{URL: s.page.URL(), HTML: html}, nil
}

// OpenItemDetail loads an item detail page in a fresh page of the same
// context and closes it after taking the snapshot.
func (s *Session) OpenItemDetail(ctx context.Context, requestID, itemSuffixID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	target, err := itemURL(s.opts.ItemDetailURL, requestID, itemSuffixID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	page, err := s.bctx.NewPage()
	if err != nil {
		return Snapshot{}, wrap("opening item page", ErrNavigation, err)
	}
	defer page.Close()

	if err := s.navigate(page, target); err != nil {
		return Snapshot{}, wrap("loading item "+requestID+"/"+itemSuffixID, ErrNavigation, err)
	}
	html, err := page.Content()
	if err != nil {
		return Snapshot{}, wrap("reading item page", ErrNavigation, err)
	}
	return Snapshot{URL: page.URL(), HTML: html}, nil
}

// Download fetches ref with the session's cookies over plain HTTP. Relative
// references are resolved against the portal base URL.
func (s *Session) Download(ctx context.Context, ref string) ([]byte, error) {
	url, err := ResolveURL(s.opts.BaseURL, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	cookies, err := s.bctx.Cookies(url)
	if err != nil {
		return nil, wrap("reading session cookies", ErrNavigation, err)
	}
	return fetch(ctx, s.http, url, httpCookies(cookies))
}

func fetch(ctx context.Context, client *resty.Client, url string, cookies []*http.Cookie) ([]byte, error) {
	resp, err := client.R().
		SetContext(ctx).
		SetCookies(cookies).
		Get(url)
	if err != nil {
		return nil, wrap("downloading "+url, ErrNavigation, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("downloading %s: %w: status %s", url, ErrNavigation, resp.Status())
	}
	return resp.Body(), nil
}

// GotoMessages opens the message list and returns the content frame.
func (s *Session) GotoMessages(ctx context.Context) (Snapshot, error) {
	f, err := s.openView(ctx, messagesRoute)
	if err != nil {
		return Snapshot{}, err
	}
	s.content = f
	html, err := f.Content()
	if err != nil {
		return Snapshot{}, wrap("reading messages", ErrNavigation, err)
	}
	return Snapshot{URL: f.URL(), HTML: html}, nil
}

// OpenMessageDetail clicks the message reference in the message list and
// returns the detail popup.
func (s *Session) OpenMessageDetail(ctx context.Context, refNumber string) (Popup, error) {
	f, ok := s.content.(playwright.Frame)
	if !ok {
		return nil, fmt.Errorf("%w: message list is not open", ErrNavigation)
	}
	return s.OpenPopup(ctx, func() error {
		return f.Locator(messageTrigger(refNumber)).First().Click()
	})
}

// OpenPopup arms the popup listener, then runs trigger, then waits for the
// popup to settle.
func (s *Session) OpenPopup(ctx context.Context, trigger func() error) (Popup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := s.page.ExpectPopup(trigger, playwright.PageExpectPopupOptions{Timeout: s.timeoutMs()})
	if err != nil {
		return nil, wrap("opening popup", ErrNavigation, err)
	}
	if err := s.settle(page); err != nil {
		page.Close()
		return nil, wrap("waiting for popup", ErrNavigation, err)
	}
	return &pagePopup{page: page}, nil
}

// Close tears down the browser and the driver. Safe to call more than once.
func (s *Session) Close() error {
	var errs []error
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing browser: %w", err))
		}
		s.browser = nil
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping playwright: %w", err))
		}
		s.pw = nil
	}
	s.bctx, s.page, s.content, s.home = nil, nil, nil, ""
	return errors.Join(errs...)
}

type pagePopup struct {
	page playwright.Page
}

func (p *pagePopup) URL() string { return p.page.URL() }

func (p *pagePopup) HTML() (string, error) { return p.page.Content() }

func (p *pagePopup) Close() error { return p.page.Close() }

// pageNavigator implements Navigator on the frames of one page.
type pageNavigator struct {
	page    playwright.Page
	timeout time.Duration
}

func (n *pageNavigator) LocateFrame(ctx context.Context, p FramePattern) (Frame, error) {
	return pollFrames(ctx, func() []Frame {
		frames := n.page.Frames()
		out := make([]Frame, len(frames))
		for i, f := range frames {
			out[i] = f
		}
		return out
	}, p, n.timeout, 250*time.Millisecond)
}

func (n *pageNavigator) Load(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(n.timeout.Milliseconds())),
	})
	return err
}

func (n *pageNavigator) frame(f Frame) (playwright.Frame, error) {
	pf, ok := f.(playwright.Frame)
	if !ok {
		return nil, fmt.Errorf("unexpected frame type %T", f)
	}
	return pf, nil
}

func (n *pageNavigator) Hover(ctx context.Context, f Frame, selector string) error {
	pf, err := n.frame(f)
	if err != nil {
		return err
	}
	return pf.Locator(selector).First().Hover(playwright.LocatorHoverOptions{
		Timeout: playwright.Float(float64(n.timeout.Milliseconds())),
	})
}

func (n *pageNavigator) Click(ctx context.Context, f Frame, selector string) error {
	pf, err := n.frame(f)
	if err != nil {
		return err
	}
	return pf.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(n.timeout.Milliseconds())),
	})
}

func (n *pageNavigator) Settle(ctx context.Context, f Frame) error {
	pf, err := n.frame(f)
	if err != nil {
		return err
	}
	return pf.WaitForLoadState(playwright.FrameWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(n.timeout.Milliseconds())),
	})
}
