// Package extract turns a comic page into issue metadata and panel locations.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-crawler/internal/comic"
)

// ErrEmptyDocument is returned for empty or whitespace-only input.
var ErrEmptyDocument = errors.New("empty document")

const (
	titleSuffix   = " - Penny Arcade"
	untitled      = "Untitled"
	dateLayout    = "January 2, 2006"
	dateSelector  = "p.details.date"
	areaSelector  = "div.comic-area"
	panelSelector = "div.comic-panel"
	newerSelector = "a.orange-btn.newer"
)

// Extractor parses comic pages.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor. A nil logger disables logging.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract reads the title, publication date and panel locations of a comic page.
func (e *Extractor) Extract(html []byte, url string) (comic.Issue, error) {
	doc, err := parse(html)
	if err != nil {
		return comic.Issue{}, err
	}
	return comic.Issue{
		Title:           title(doc),
		URL:             url,
		PublicationDate: e.publicationDate(doc, url),
		PanelURLs:       e.Panels(doc),
	}, nil
}

// Panels resolves one location per panel container, preferring the 2x srcset entry and
// falling back to src. A panel without an image still counts, with an empty location.
func (e *Extractor) Panels(doc *goquery.Document) comic.Panels {
	area := doc.Find(areaSelector).First()
	if area.Length() == 0 {
		return comic.Panels{}
	}
	containers := area.Find(panelSelector)
	if containers.Length() > comic.MaxPanels {
		e.logger.Warn("truncating panels", zap.Int("found", containers.Length()), zap.Int("kept", comic.MaxPanels))
		containers = containers.Slice(0, comic.MaxPanels)
	}
	panels := make(comic.Panels, containers.Length())
	containers.Each(func(i int, panel *goquery.Selection) {
		img := panel.Find("img").First()
		if img.Length() == 0 {
			return
		}
		if srcset, ok := img.Attr("srcset"); ok {
			if hi := pick2x(srcset); hi != "" {
				panels[i] = hi
				return
			}
		}
		if src, ok := img.Attr("src"); ok {
			panels[i] = strings.TrimSpace(src)
		}
	})
	return panels
}

// NextLink returns the href of the "newer" navigation button. ok is false when the
// page has no such button or its href is empty.
func (e *Extractor) NextLink(html []byte) (string, bool, error) {
	doc, err := parse(html)
	if err != nil {
		return "", false, err
	}
	href, exists := doc.Find(newerSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" {
		return "", false, nil
	}
	return href, true, nil
}

func parse(html []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(html)) == 0 {
		return nil, ErrEmptyDocument
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func title(doc *goquery.Document) string {
	sel := doc.Find("title").First()
	if sel.Length() == 0 {
		return untitled
	}
	text := strings.TrimSpace(sel.Text())
	if trimmed, ok := strings.CutSuffix(text, titleSuffix); ok {
		return strings.TrimSpace(trimmed)
	}
	return text
}

func (e *Extractor) publicationDate(doc *goquery.Document, url string) *time.Time {
	sel := doc.Find(dateSelector).First()
	if sel.Length() == 0 {
		return nil
	}
	raw := strings.TrimSpace(sel.Text())
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		e.logger.Warn("unparseable publication date",
			zap.String("url", url),
			zap.String("raw", raw),
			zap.Error(err),
		)
		return nil
	}
	return &parsed
}

func pick2x(srcset string) string {
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 2 && fields[1] == "2x" {
			return fields[0]
		}
	}
	return ""
}
