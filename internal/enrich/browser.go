package enrich

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/resilience"
)

var showNumberSelectors = []string{
	`button[data-testid*='show']`,
	`button[class*='show']`,
	`button[class*='phone']`,
	`button[onclick*='show']`,
	`.show-phone`,
	`.show-number`,
}

const showNumberText = `ნომრის ჩვენება|Show [Nn]umber`

// BrowserOptions configures the headless browser.
type BrowserOptions struct {
	Bin         string
	Headless    bool
	PageTimeout time.Duration
	RevealWait  time.Duration
	SiteURL     string
}

// BrowserExtractor opens the listing page in Chrome, clicks the "show
// number" button and scans the rendered page for phones. Chrome is
// launched lazily on first use and shared by every call.
type BrowserExtractor struct {
	opts   BrowserOptions
	logger *slog.Logger

	once    sync.Once
	browser *rod.Browser
	initErr error
}

func NewBrowserExtractor(opts BrowserOptions, logger *slog.Logger) *BrowserExtractor {
	if opts.PageTimeout == 0 {
		opts.PageTimeout = 30 * time.Second
	}
	if opts.RevealWait == 0 {
		opts.RevealWait = 2 * time.Second
	}
	return &BrowserExtractor{opts: opts, logger: logger.With("extractor", "browser")}
}

func (b *BrowserExtractor) Name() string { return "browser" }

func (b *BrowserExtractor) connect() (*rod.Browser, error) {
	b.once.Do(func() {
		l := launcher.New().Headless(b.opts.Headless)
		if b.opts.Bin != "" {
			l = l.Bin(b.opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			b.initErr = resilience.NewFatal("browser: launch", err)
			return
		}
		browser := rod.New().ControlURL(u)
		if err := browser.Connect(); err != nil {
			b.initErr = resilience.NewFatal("browser: connect", err)
			return
		}
		b.browser = browser
	})
	return b.browser, b.initErr
}

func (b *BrowserExtractor) Extract(ctx context.Context, ent model.Entity) ([]Candidate, error) {
	url := ListingURL(ent)
	if url == "" {
		return nil, nil
	}
	if !strings.HasPrefix(url, "http") {
		url = strings.TrimRight(b.opts.SiteURL, "/") + url
	}

	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, resilience.NewTransient("browser: open "+url, err)
	}
	defer func() { _ = page.Close() }()

	page = page.Timeout(b.opts.PageTimeout)
	if err := page.WaitLoad(); err != nil {
		return nil, resilience.NewTransient("browser: load "+url, err)
	}

	if el := b.findShowButton(page); el != nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			b.logger.Debug("Show number click failed", "entity", ent.ID, "err", err)
		} else {
			_ = page.WaitStable(b.opts.RevealWait)
		}
	}

	var raws []string
	if obj, err := page.Eval(`() => localStorage.getItem('phoneNumbers') || ''`); err == nil {
		raws = append(raws, FindPhones(obj.Value.Str())...)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, resilience.NewTransient("browser: html "+url, eris.Wrap(err, "read page"))
	}
	raws = append(raws, FindPhones(html)...)

	cands := make([]Candidate, 0, len(raws))
	for _, raw := range raws {
		cands = append(cands, Candidate{Raw: raw, Key: ent.ID})
	}
	return cands, nil
}

func (b *BrowserExtractor) findShowButton(page *rod.Page) *rod.Element {
	for _, sel := range showNumberSelectors {
		if ok, el, err := page.Has(sel); err == nil && ok {
			return el
		}
	}
	if ok, el, err := page.HasR("button", showNumberText); err == nil && ok {
		return el
	}
	return nil
}

// Close shuts Chrome down if it was started.
func (b *BrowserExtractor) Close() error {
	if b.browser == nil {
		return nil
	}
	return b.browser.Close()
}
