package scrape

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Listing page structure: each project sits in a repeating container and its
// fields are labels whose server-generated ids contain a conventional name.
const (
	projectBlockSelector = ".startpaginaprojects .projectInfo"
	detailLinkSelector   = ".button"
)

// Extractor pulls candidate project blocks out of the listing page HTML.
// Each call reparses the whole document; there is no incremental mode.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor constructs an Extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract returns one RawFields per project block found in html, in document
// order. A block without a usable detail link is logged and skipped; it never
// aborts the rest of the batch. An error is returned only when the document
// itself cannot be parsed.
func (e *Extractor) Extract(html []byte) ([]RawFields, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing document: %w", err)
	}

	var records []RawFields
	doc.Find(projectBlockSelector).Each(func(i int, block *goquery.Selection) {
		raw, ok := extractBlock(block)
		if !ok {
			e.logger.Warn("project block without detail link, skipping", zap.Int("index", i))
			return
		}
		records = append(records, raw)
	})
	return records, nil
}

func extractBlock(block *goquery.Selection) (RawFields, bool) {
	link, ok := block.Find(detailLinkSelector).First().Attr("href")
	if !ok {
		return RawFields{}, false
	}
	// The project identifier is the first run of digits in the detail link.
	id, ok := firstDigits(link)
	if !ok {
		return RawFields{}, false
	}
	return RawFields{
		ID:             id,
		Link:           link,
		Title:          labelText(block, "ProjectNaamLabel"),
		Classification: labelText(block, "ClassificatieLabel"),
		Rating:         labelText(block, "GraydonRatingLabel"),
		Interest:       labelText(block, "RenteLabel"),
		Credit:         labelText(block, "CreditSafeLabel"),
		Duration:       labelText(block, "LooptijdLabel"),
	}, true
}

// labelText returns the trimmed text of the first sub-element whose id
// attribute contains name.
func labelText(block *goquery.Selection, name string) string {
	return strings.TrimSpace(block.Find(fmt.Sprintf("[id*=%q]", name)).First().Text())
}
