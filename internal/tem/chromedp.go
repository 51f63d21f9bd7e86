package tem

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// chromeBrowser is the chromedp-backed Browser implementation.
type chromeBrowser struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

// NewChromeBrowser launches a Chrome instance and returns a Browser bound to
// it. headless runs Chrome in the new headless mode; the visible mode exists
// for debugging the form flow locally.
func NewChromeBrowser(ctx context.Context, headless bool) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Start the browser up front so factory errors surface here rather than
	// on the first interaction.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	return &chromeBrowser{
		ctx:     browserCtx,
		cancels: []context.CancelFunc{cancelBrowser, cancelAlloc},
	}, nil
}

// run executes actions on the browser context, bounded by the caller's
// deadline when one is set.
func (b *chromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := b.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(b.ctx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (b *chromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

func (b *chromeBrowser) WaitVisible(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.WaitVisible(selector, chromedp.BySearch))
}

func (b *chromeBrowser) WaitGone(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.WaitNotPresent(selector, chromedp.BySearch))
}

func (b *chromeBrowser) Click(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.Click(selector, chromedp.BySearch))
}

// ClickScript scrolls the element into view and clicks it from injected
// JavaScript. Only used as a fallback when the pointer click is intercepted.
func (b *chromeBrowser) ClickScript(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(function() {
		var el = document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) { return false; }
		el.scrollIntoView(true);
		el.click();
		return true;
	})()`, selector)

	var clicked bool
	if err := b.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no element matched %s", selector)
	}
	return nil
}

func (b *chromeBrowser) Fill(ctx context.Context, selector, value string) error {
	return b.run(ctx,
		chromedp.Clear(selector, chromedp.BySearch),
		chromedp.SendKeys(selector, value, chromedp.BySearch),
	)
}

func (b *chromeBrowser) Close() error {
	for _, cancel := range b.cancels {
		cancel()
	}
	return nil
}
