package ratings

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// gameIDPattern extracts the numeric game id embedded in a detail-page URL,
// e.g. https://www.esrb.org/ratings/38714/some-title/.
var gameIDPattern = regexp.MustCompile(`/ratings/(\d+)/`)

// ParseItems extracts rating records from one search-results page, in
// document order. Items whose markup lacks a title or a derivable game id
// are discarded; the second return value reports how many were dropped.
func ParseItems(body []byte) ([]Record, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("parse page: %w", err)
	}

	var (
		records   []Record
		discarded int
	)
	doc.Find("div.game").Each(func(_ int, item *goquery.Selection) {
		rec, ok := parseItem(item)
		if !ok {
			discarded++
			return
		}
		records = append(records, rec)
	})
	return records, discarded, nil
}

// parseItem maps a single game block to a Record. Title and game id are
// load-bearing; every other field degrades to an empty string when its
// sub-element is missing.
func parseItem(item *goquery.Selection) (Record, bool) {
	link := item.Find("h2 a").First()
	if link.Length() == 0 {
		return Record{}, false
	}

	title := strings.TrimSpace(link.Text())
	href, _ := link.Attr("href")
	gameID := ExtractGameID(href)
	if title == "" || gameID == 0 {
		return Record{}, false
	}

	rec := Record{
		GameID:   gameID,
		Title:    title,
		URL:      href,
		Platform: strings.TrimSpace(item.Find("div.platforms").First().Text()),
	}

	if alt, ok := item.Find("img[alt]").First().Attr("alt"); ok {
		rec.Rating = strings.TrimSpace(alt)
	}

	// Descriptors and summary live in a nested table: second row, columns
	// two and four.
	cells := item.Find("table tr").Eq(1).Find("td")
	if cells.Length() > 1 {
		rec.Descriptors = normalizeDescriptors(flattenText(cells.Eq(1)))
	}
	if cells.Length() > 3 {
		rec.Summary = strings.TrimSpace(cells.Eq(3).Find("div.synopsis").First().Text())
	}

	return rec, true
}

// ExtractGameID pulls the numeric id out of a detail-page URL.
// It returns 0 when the URL does not match the expected path pattern.
func ExtractGameID(url string) int64 {
	m := gameIDPattern.FindStringSubmatch(url)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// flattenText renders a cell's rich markup as space-separated text.
func flattenText(sel *goquery.Selection) string {
	var parts []string
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		if text := strings.TrimSpace(node.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

// normalizeDescriptors cleans up the doubled separators and doubled spaces
// that inline-to-text flattening produces.
func normalizeDescriptors(s string) string {
	for strings.Contains(s, ",,") {
		s = strings.ReplaceAll(s, ",,", ",")
	}
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	s = strings.ReplaceAll(s, " ,", ",")
	return strings.TrimSpace(s)
}
