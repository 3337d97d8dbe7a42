package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/resilience"
)

var maklerIDPattern = regexp.MustCompile(`/maklers/(\d+)/?`)

// MaklersScraper enumerates agents from the public HTML directory. Each
// agent link becomes a record with its id and url; a tel: link on the same
// card is carried as phone.
type MaklersScraper struct {
	logger  *slog.Logger
	siteURL string
	delay   time.Duration
}

func NewMaklersScraper(logger *slog.Logger, siteURL string, delay time.Duration) *MaklersScraper {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	return &MaklersScraper{
		logger:  logger,
		siteURL: strings.TrimRight(siteURL, "/"),
		delay:   delay,
	}
}

func (s *MaklersScraper) Name() string { return "Maklers" }

func (s *MaklersScraper) pageURL(page int) string {
	return fmt.Sprintf("%s/maklers/?page=%d", s.siteURL, page)
}

func (s *MaklersScraper) NextPage(ctx context.Context, page int) ([]model.Record, error) {
	var records []model.Record
	seen := make(map[string]bool)

	host := ""
	if u, err := url.Parse(s.siteURL); err == nil {
		host = u.Hostname()
	}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(defaultUserAgent),
	)
	if host != "" {
		c.AllowedDomains = []string{host}
	}
	if s.delay > 0 {
		_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: s.delay})
	}

	c.OnHTML(`a[href*="/maklers/"]`, func(e *colly.HTMLElement) {
		href := e.Attr("href")
		m := maklerIDPattern.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			return
		}
		seen[m[1]] = true

		rec := model.Record{
			"id":   m[1],
			"url":  e.Request.AbsoluteURL(href),
			"name": strings.Join(strings.Fields(e.Text), " "),
		}
		card := e.DOM.ParentsFiltered("div").First()
		if tel, ok := card.Find(`a[href^="tel:"]`).Attr("href"); ok {
			rec["phone"] = strings.TrimPrefix(tel, "tel:")
		}
		records = append(records, rec)
	})

	var status int
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
		s.logger.Error("Maklers colly error", "url", r.Request.URL, "status", r.StatusCode, "err", err)
	})

	target := s.pageURL(page)
	if err := c.Visit(target); err != nil {
		if status != 0 {
			return nil, &resilience.Error{
				Kind:       resilience.ClassifyHTTPStatus(status),
				Op:         "maklers: visit " + target,
				StatusCode: status,
				Err:        err,
			}
		}
		return nil, resilience.NewTransient("maklers: visit "+target, err)
	}
	c.Wait()

	if len(records) == 0 {
		s.logger.Debug("Maklers page yielded 0 agents", "page", page)
	}
	return records, nil
}
