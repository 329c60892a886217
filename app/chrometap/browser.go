package chrometap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const startTimeout = 30 * time.Second

type Options struct {
	RemoteURL string
	Headless  bool
	StartURL  string
}

// Run attaches to (or launches) Chrome, observes the first tab until ctx is done and feeds what
// it sees into exchanges and navigator.
func Run(ctx context.Context, opts Options, exchanges Exchanges, navigator Navigator) error {
	allocCtx, allocCancel := allocator(ctx, opts)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	fetch := func(_ context.Context, id network.RequestID) ([]byte, error) {
		var body []byte
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to get response body: %w", err)
		}
		return body, nil
	}

	tap := NewTap(browserCtx, exchanges, navigator, fetch)
	chromedp.ListenTarget(browserCtx, tap.HandleEvent)

	startCtx, startDone := context.WithTimeout(ctx, startTimeout)
	defer startDone()

	errCh := make(chan error, 1)
	go func() {
		actions := []chromedp.Action{network.Enable(), page.Enable()}
		if opts.StartURL != "" {
			actions = append(actions, chromedp.Navigate(opts.StartURL))
		}
		errCh <- chromedp.Run(browserCtx, actions...)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start browser tap: %w", err)
		}
	case <-startCtx.Done():
		return fmt.Errorf("browser tap did not start within %s", startTimeout)
	}

	slog.Info("Browser tap attached", "remote", opts.RemoteURL != "", "start_url", opts.StartURL)

	<-ctx.Done()
	tap.Wait()
	slog.Info("Browser tap detached")
	return nil
}

func allocator(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.RemoteURL != "" {
		slog.Info("Connecting to Chrome", "url", opts.RemoteURL)
		return chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	}

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-sync", true),
		chromedp.WindowSize(1366, 768),
	}
	if opts.Headless {
		execOpts = append(execOpts, chromedp.Headless)
	} else {
		execOpts = append(execOpts, chromedp.Flag("headless", false))
	}

	slog.Info("Launching Chrome", "headless", opts.Headless)
	return chromedp.NewExecAllocator(ctx, execOpts...)
}
