package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const defaultChromeTimeout = 30 * time.Second

type ChromeOptions struct {
	// RemoteURL points at a running Chrome DevTools endpoint. Empty launches
	// a local headless browser.
	RemoteURL string
	Timeout   time.Duration
}

// Chrome prints the HTML invoice to PDF through the DevTools protocol.
type Chrome struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
}

func NewChrome(opts ChromeOptions) *Chrome {
	if opts.Timeout == 0 {
		opts.Timeout = defaultChromeTimeout
	}

	c := &Chrome{timeout: opts.Timeout}
	if opts.RemoteURL != "" {
		c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		flags := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.DisableGPU,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("font-render-hinting", "none"),
		)
		c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), flags...)
	}
	return c
}

func (c *Chrome) Render(ctx context.Context, doc Document) ([]byte, error) {
	html, err := RenderHTML(doc)
	if err != nil {
		return nil, err
	}

	browserCtx, cancel := chromedp.NewContext(c.allocCtx)
	defer cancel()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, c.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5).
				WithPaperHeight(11).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("print invoice %s: %w", doc.InvoiceID, err)
	}
	return pdf, nil
}

// Close shuts down the browser allocator.
func (c *Chrome) Close() {
	c.allocCancel()
}
