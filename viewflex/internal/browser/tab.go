package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// Tab is a configured chat page open in the managed browser.
type Tab struct {
	ID   string
	URL  string
	Page *rod.Page
}

// OpenTab opens url in a stealth page, applies resource blocking and waits
// for the load event. A load timeout is logged, not fatal: chat apps keep
// streaming long after navigation.
func (m *Manager) OpenTab(ctx context.Context, id, url string) (*Tab, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: new page: %w", err)
	}
	if len(m.cfg.ResourceBlocking) > 0 {
		if err := blockResources(page, m.cfg.ResourceBlocking); err != nil {
			m.cfg.Logger.Warn("browser: resource blocking", "page", id, "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: load not reached", "page", id, "url", url, "error", err)
	}

	m.cfg.Logger.Info("browser: tab open", "page", id, "url", url)
	return &Tab{ID: id, URL: url, Page: page}, nil
}

// Close closes the page.
func (t *Tab) Close() error {
	if t.Page == nil {
		return nil
	}
	return t.Page.Close()
}
