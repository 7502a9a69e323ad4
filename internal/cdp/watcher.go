package cdp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Watcher subscribes to browser target lifecycle notifications and mirrors
// them into a TabRegistry. It is the event-driven half of tab discovery;
// the detector's reconcile sweep is the polling half. Both write into the
// same registry so a missed event is repaired on the next sweep.
type Watcher struct {
	registry    *TabRegistry
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

func NewWatcher(registry *TabRegistry) *Watcher {
	return &Watcher{registry: registry}
}

// Start connects to the browser's CDP endpoint and begins routing target
// events into the registry.
func (w *Watcher) Start(ctx context.Context, cdpURL string) error {
	w.allocCtx, w.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	w.browserCtx, w.cancel = chromedp.NewContext(w.allocCtx)

	if err := chromedp.Run(w.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ctx)
	})); err != nil {
		w.Stop()
		return fmt.Errorf("watcher: connect %s: %w", cdpURL, err)
	}

	chromedp.ListenBrowser(w.browserCtx, w.handleEvent)

	slog.Info("tab watcher started", "cdp_url", cdpURL)
	return nil
}

func (w *Watcher) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
			return
		}
		w.registry.Register(string(e.TargetInfo.TargetID), e.TargetInfo.Title, e.TargetInfo.URL)
		slog.Debug("tab created", "target_id", e.TargetInfo.TargetID, "url", truncateURL(e.TargetInfo.URL))
	case *target.EventTargetInfoChanged:
		if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
			return
		}
		id := string(e.TargetInfo.TargetID)
		if !w.registry.Update(id, e.TargetInfo.Title, e.TargetInfo.URL) {
			// Change raced ahead of creation; the registry absorbs it.
			w.registry.Register(id, e.TargetInfo.Title, e.TargetInfo.URL)
		}
	case *target.EventTargetDestroyed:
		w.registry.Remove(string(e.TargetID))
		slog.Debug("tab destroyed", "target_id", e.TargetID)
	}
}

// TargetIDs enumerates live page target handles without touching page
// content. It backs the reduced-fidelity reconcile fallback when the
// full sweep times out.
func (w *Watcher) TargetIDs(ctx context.Context) ([]string, error) {
	if w.browserCtx == nil {
		return nil, fmt.Errorf("watcher: not started")
	}

	var ids []string
	err := chromedp.Run(w.browserCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		infos, err := target.GetTargets().Do(runCtx)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if info.Type == "page" {
				ids = append(ids, string(info.TargetID))
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Stop disconnects the watcher. The registry keeps its last known state.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.allocCancel != nil {
		w.allocCancel()
		w.allocCancel = nil
	}
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
