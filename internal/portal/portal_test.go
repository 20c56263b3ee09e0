package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrame struct {
	name, url, html string
}

func (f *fakeFrame) Name() string             { return f.name }
func (f *fakeFrame) URL() string              { return f.url }
func (f *fakeFrame) Content() (string, error) { return f.html, nil }

type fakeNavigator struct {
	frames   []Frame
	calls    []string
	clickErr error
	// pages maps a loaded URL to the frames it renders.
	pages map[string][]Frame
}

func (n *fakeNavigator) Load(_ context.Context, url string) error {
	n.calls = append(n.calls, "load "+url)
	frames, ok := n.pages[url]
	if !ok {
		return errors.New("no such page " + url)
	}
	n.frames = frames
	return nil
}

func (n *fakeNavigator) LocateFrame(ctx context.Context, p FramePattern) (Frame, error) {
	n.calls = append(n.calls, "locate "+p.Name)
	return pollFrames(ctx, func() []Frame { return n.frames }, p, 20*time.Millisecond, 5*time.Millisecond)
}

func (n *fakeNavigator) Hover(_ context.Context, f Frame, sel string) error {
	n.calls = append(n.calls, "hover "+f.Name()+" "+sel)
	return nil
}

func (n *fakeNavigator) Click(_ context.Context, f Frame, sel string) error {
	n.calls = append(n.calls, "click "+f.Name()+" "+sel)
	return n.clickErr
}

func (n *fakeNavigator) Settle(_ context.Context, f Frame) error {
	n.calls = append(n.calls, "settle "+f.Name())
	return nil
}

func TestFollowMenu(t *testing.T) {
	nav := &fakeNavigator{frames: []Frame{
		&fakeFrame{name: "", url: "https://portal.test/top.aspx"},
		&fakeFrame{name: "Menu", url: "https://portal.test/nav.aspx"},
		&fakeFrame{name: "", url: "https://portal.test/MAIN/POList.aspx", html: "<table></table>"},
	}}

	f, err := followMenu(context.Background(), nav, listRoute)
	require.NoError(t, err)
	assert.Equal(t, "https://portal.test/MAIN/POList.aspx", f.URL())
	assert.Equal(t, []string{
		"locate menu",
		"hover Menu " + listRoute.Menu,
		"click Menu " + listRoute.Link,
		"locate main",
		"settle ",
	}, nav.calls)
}

func TestFollowMenuMissingFrame(t *testing.T) {
	nav := &fakeNavigator{frames: []Frame{&fakeFrame{name: "top", url: "https://portal.test/"}}}

	_, err := followMenu(context.Background(), nav, messagesRoute)
	require.ErrorIs(t, err, ErrNavigation)
	assert.False(t, IsBatchFatal(err))
}

func TestFollowMenuClickTimeout(t *testing.T) {
	nav := &fakeNavigator{
		frames:   []Frame{&fakeFrame{name: "menu"}, &fakeFrame{name: "main"}},
		clickErr: playwright.ErrTimeout,
	}

	_, err := followMenu(context.Background(), nav, listRoute)
	require.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrNavigation)
}

func portalFrameset() []Frame {
	return []Frame{
		&fakeFrame{name: "", url: "https://portal.test/default.aspx"},
		&fakeFrame{name: "menu", url: "https://portal.test/nav.aspx"},
		&fakeFrame{name: "main", url: "https://portal.test/MAIN/POList.aspx"},
	}
}

func TestGotoListViewAfterDetailPage(t *testing.T) {
	home := "https://portal.test/default.aspx"
	detail := "https://portal.test/PODetail.aspx?po_id=4500"
	nav := &fakeNavigator{
		// The detail page replaced the frameset: one unnamed main frame.
		frames: []Frame{&fakeFrame{name: "", url: detail}},
		pages:  map[string][]Frame{home: portalFrameset()},
	}
	s := &Session{nav: nav, home: home}

	require.NoError(t, s.GotoListView(context.Background()))
	require.NotNil(t, s.content)
	assert.Equal(t, "https://portal.test/MAIN/POList.aspx", s.content.URL())
	assert.Equal(t, "load "+home, nav.calls[0])
}

func TestGotoListViewRepeatedAcrossPOs(t *testing.T) {
	home := "https://portal.test/default.aspx"
	nav := &fakeNavigator{
		frames: portalFrameset(),
		pages:  map[string][]Frame{home: portalFrameset()},
	}
	s := &Session{nav: nav, home: home}

	for _, po := range []string{"4500", "4501", "4502"} {
		require.NoError(t, s.GotoListView(context.Background()), po)
		nav.frames = []Frame{&fakeFrame{url: "https://portal.test/PODetail.aspx?po_id=" + po}}
		s.content = nil
	}
}

func TestGotoListViewHomeLoadFails(t *testing.T) {
	nav := &fakeNavigator{pages: map[string][]Frame{}}
	s := &Session{nav: nav, home: "https://portal.test/gone.aspx"}

	err := s.GotoListView(context.Background())
	require.ErrorIs(t, err, ErrNavigation)
	assert.Nil(t, s.content)
}

func TestPollFramesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pollFrames(ctx, func() []Frame { return nil }, contentFrame, time.Second, time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPollFramesFindsLateFrame(t *testing.T) {
	var n int
	list := func() []Frame {
		n++
		if n < 3 {
			return nil
		}
		return []Frame{&fakeFrame{name: "main"}}
	}

	f, err := pollFrames(context.Background(), list, contentFrame, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "main", f.Name())
}

func TestWrapClassification(t *testing.T) {
	assert.Nil(t, wrap("op", ErrNavigation, nil))

	err := wrap("loading", ErrNavigation, errors.New("net::ERR_ABORTED"))
	assert.ErrorIs(t, err, ErrNavigation)

	err = wrap("loading", ErrNavigation, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.True(t, IsBatchFatal(wrap("login", ErrAuthentication, errors.New("x"))))
	assert.True(t, IsBatchFatal(ErrLaunch))
}

func TestDetailAndItemURLs(t *testing.T) {
	u, err := detailURL("https://portal.test/PO/Detail.aspx", "1234567")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.test/PO/Detail.aspx?po_id=1234567", u)
	assert.True(t, echoesPO(u, "1234567"))
	assert.False(t, echoesPO(u, "123"))
	assert.False(t, echoesPO("https://portal.test/Error.aspx", "1234567"))

	u, err = itemURL("https://portal.test/Item.aspx", "5501", "77")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.test/Item.aspx?item_suffix_id=77&request_id=5501", u)

	_, err = detailURL("", "1")
	assert.Error(t, err)
}

func TestIsLoginURL(t *testing.T) {
	login := "https://portal.test/Login.aspx"
	assert.True(t, isLoginURL("https://portal.test/login.aspx?ReturnUrl=%2f", login))
	assert.False(t, isLoginURL("https://portal.test/Default.aspx", login))
	assert.True(t, isLoginURL("https://portal.test/account/login", "https://portal.test/"))
}

func TestResolveURL(t *testing.T) {
	got, err := ResolveURL("https://portal.test/app/", "files/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.test/app/files/a.pdf", got)

	got, err = ResolveURL("https://portal.test/app/", "/root.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.test/root.pdf", got)

	got, err = ResolveURL("", "https://cdn.test/x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/x.pdf", got)

	_, err = ResolveURL("", "x.pdf")
	assert.Error(t, err)
}

func TestHTTPCookies(t *testing.T) {
	got := httpCookies([]playwright.Cookie{
		{Name: "ASP.NET_SessionId", Value: "abc", Domain: "portal.test", Path: "/", Expires: -1, HttpOnly: true},
		{Name: "pref", Value: "1", Expires: 1767225600, Secure: true},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "ASP.NET_SessionId", got[0].Name)
	assert.True(t, got[0].HttpOnly)
	assert.True(t, got[0].Expires.IsZero())
	assert.Equal(t, int64(1767225600), got[1].Expires.Unix())
}

func TestFetchSendsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil || c.Value != "s1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	client := resty.New()
	body, err := fetch(context.Background(), client, srv.URL+"/a.pdf", []*http.Cookie{{Name: "session", Value: "s1"}})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(body))

	_, err = fetch(context.Background(), client, srv.URL+"/a.pdf", nil)
	require.ErrorIs(t, err, ErrNavigation)
}

func TestCloseWithoutOpen(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
