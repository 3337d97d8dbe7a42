package enrich

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shanehull/phonesourcer/internal/model"
)

// Text patterns in decreasing specificity. Later patterns also match inside
// the earlier ones; duplicates collapse on the normalized identity.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+995\s*\d{3}\s*\d{3}\s*\d{3}`),
	regexp.MustCompile(`995\s*\d{3}\s*\d{3}\s*\d{3}`),
	regexp.MustCompile(`\d{3}\s*\d{3}\s*\d{3}`),
	regexp.MustCompile(`\d{9}`),
}

// FindPhones returns the raw phone strings found in an HTML document:
// tel: and callto: links first, then digit runs in the visible text. Only
// strings that normalize are returned, one per identity.
func FindPhones(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[model.Phone]struct{})
	var out []string
	add := func(raw string) {
		p, ok := model.NormalizePhone(raw)
		if !ok {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, raw)
	}

	doc.Find(`a[href^="tel:"], a[href^="callto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimPrefix(strings.TrimPrefix(href, "tel:"), "callto:")
		add(strings.TrimSpace(href))
	})

	doc.Find("script, style").Remove()
	text := doc.Text()
	for _, re := range phonePatterns {
		for _, m := range re.FindAllString(text, -1) {
			add(m)
		}
	}
	return out
}
