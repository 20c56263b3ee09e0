package portal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Frame is the part of a browser frame the navigation flows read.
type Frame interface {
	Name() string
	URL() string
	Content() (string, error)
}

// FramePattern identifies a frame by name or by a URL substring. Matching is
// case-insensitive; either field may be empty.
type FramePattern struct {
	Name        string
	URLContains string
}

func (p FramePattern) matches(f Frame) bool {
	if p.Name != "" && strings.EqualFold(f.Name(), p.Name) {
		return true
	}
	return p.URLContains != "" && strings.Contains(strings.ToLower(f.URL()), strings.ToLower(p.URLContains))
}

func (p FramePattern) String() string {
	return fmt.Sprintf("frame(name=%q url~%q)", p.Name, p.URLContains)
}

// Navigator is the menu navigation capability of a frame-based UI: menus
// open on hover and a click in the navigation frame reloads the content frame.
// Load replaces the top-level document.
type Navigator interface {
	Load(ctx context.Context, url string) error
	LocateFrame(ctx context.Context, p FramePattern) (Frame, error)
	Hover(ctx context.Context, f Frame, selector string) error
	Click(ctx context.Context, f Frame, selector string) error
	Settle(ctx context.Context, f Frame) error
}

// MenuRoute is a hover-then-click path from the navigation frame to a view
// rendered in the content frame.
type MenuRoute struct {
	Nav     FramePattern
	Menu    string
	Link    string
	Content FramePattern
}

// followMenu walks route and returns the settled content frame.
func followMenu(ctx context.Context, nav Navigator, route MenuRoute) (Frame, error) {
	navF, err := nav.LocateFrame(ctx, route.Nav)
	if err != nil {
		return nil, wrap("locating navigation frame", ErrNavigation, err)
	}
	if err := nav.Hover(ctx, navF, route.Menu); err != nil {
		return nil, wrap("opening menu "+route.Menu, ErrNavigation, err)
	}
	if err := nav.Click(ctx, navF, route.Link); err != nil {
		return nil, wrap("clicking "+route.Link, ErrNavigation, err)
	}
	content, err := nav.LocateFrame(ctx, route.Content)
	if err != nil {
		return nil, wrap("locating content frame", ErrNavigation, err)
	}
	if err := nav.Settle(ctx, content); err != nil {
		return nil, wrap("waiting for content frame", ErrNavigation, err)
	}
	return content, nil
}

// pollFrames looks for a frame matching p until timeout elapses.
func pollFrames(ctx context.Context, list func() []Frame, p FramePattern, timeout, interval time.Duration) (Frame, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		for _, f := range list() {
			if p.matches(f) {
				return f, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%s not found within %s", p, timeout)
		case <-tick.C:
		}
	}
}
