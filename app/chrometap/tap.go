package chrometap

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
)

// Exchanges is implemented by capture.Exchanges.
type Exchanges interface {
	Open(id, url string)
	OpenFetch(id, url string)
	Wants(id string) bool
	Complete(id string, body []byte) int
	Abandon(id string)
}

// Navigator is told about main-frame location changes. Implemented by relay.Relay.
type Navigator interface {
	Navigate(location string)
}

// BodyFetcher retrieves a finished response body from the browser.
type BodyFetcher func(ctx context.Context, id network.RequestID) ([]byte, error)

// Tap turns DevTools network and page events into exchange and navigation calls. It only
// observes; requests are never intercepted or modified.
type Tap struct {
	exchanges Exchanges
	navigator Navigator
	fetch     BodyFetcher

	mu          sync.RWMutex
	mainFrameID cdp.FrameID

	ctx context.Context
	wg  sync.WaitGroup
}

func NewTap(ctx context.Context, exchanges Exchanges, navigator Navigator, fetch BodyFetcher) *Tap {
	return &Tap{
		exchanges: exchanges,
		navigator: navigator,
		fetch:     fetch,
		ctx:       ctx,
	}
}

// HandleEvent is the chromedp.ListenTarget callback. It must not block, so body retrieval runs
// on its own goroutine.
func (t *Tap) HandleEvent(ev any) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if ev.Request == nil {
			return
		}
		switch ev.Type {
		case network.ResourceTypeXHR:
			t.exchanges.Open(string(ev.RequestID), ev.Request.URL)
		case network.ResourceTypeFetch:
			t.exchanges.OpenFetch(string(ev.RequestID), ev.Request.URL)
		}

	case *network.EventLoadingFinished:
		id := string(ev.RequestID)
		if !t.exchanges.Wants(id) {
			t.exchanges.Abandon(id)
			return
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.complete(ev.RequestID)
		}()

	case *network.EventLoadingFailed:
		id := string(ev.RequestID)
		t.exchanges.Abandon(id)

	case *page.EventFrameNavigated:
		if ev.Frame == nil || ev.Frame.ParentID != "" {
			return
		}
		t.mu.Lock()
		t.mainFrameID = ev.Frame.ID
		t.mu.Unlock()
		t.navigator.Navigate(ev.Frame.URL + ev.Frame.URLFragment)

	case *page.EventNavigatedWithinDocument:
		t.mu.RLock()
		main := t.mainFrameID
		t.mu.RUnlock()
		if main != "" && ev.FrameID != main {
			return
		}
		t.navigator.Navigate(ev.URL)
	}
}

func (t *Tap) complete(requestID network.RequestID) {
	id := string(requestID)

	body, err := t.fetch(t.ctx, requestID)
	if err != nil {
		slog.Warn("Failed to read response body from browser", "request_id", id, "error", err)
		t.exchanges.Abandon(id)
		return
	}

	t.exchanges.Complete(id, body)
}

// Wait blocks until outstanding body fetches return.
func (t *Tap) Wait() {
	t.wg.Wait()
}
