package adapters

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/massy-ia/citydesk/internal/apperr"
)

const (
	AllNewsCategories = "all"

	maxNewsItems    = 20
	newsSource      = "Massy.fr"
	defaultCategory = "general"
	unknownTitle    = "Titre inconnu"
	noDescription   = "Aucune description"
	eventDateLayout = "02/01/2006"
)

type NewsItem struct {
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Category string   `json:"category"`
	Source   string   `json:"source"`
	Date     *string  `json:"date"`
	Tags     []string `json:"tags"`
}

type Event struct {
	Title       string
	Description string
	Date        *time.Time
}

// Scraper reads the city news and events pages.
type Scraper struct {
	client    *Client
	newsURL   string
	eventsURL string
}

func NewScraper(newsURL, eventsURL string) *Scraper {
	return &Scraper{
		client:    NewClient("massy-site", 10*time.Second),
		newsURL:   newsURL,
		eventsURL: eventsURL,
	}
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := s.client.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Unavailable("failed to parse page", err)
	}
	return doc, nil
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

// News scrapes the first twenty news items, keeping those of category.
// "all" or an empty category keeps everything. Missing fields get placeholders.
func (s *Scraper) News(ctx context.Context, category string) ([]NewsItem, error) {
	doc, err := s.fetch(ctx, s.newsURL)
	if err != nil {
		return nil, err
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = AllNewsCategories
	}

	articles := doc.Find(".news-item")
	items := []NewsItem{}
	articles.Slice(0, min(articles.Length(), maxNewsItems)).Each(func(_ int, article *goquery.Selection) {
		itemCategory := defaultCategory
		if sel := article.Find(".category"); sel.Length() > 0 {
			itemCategory = strings.ToLower(text(sel))
		}
		if category != AllNewsCategories && itemCategory != category {
			return
		}

		item := NewsItem{
			Title:    unknownTitle,
			URL:      "#",
			Category: itemCategory,
			Source:   newsSource,
			Tags:     []string{},
		}
		if sel := article.Find(".title"); sel.Length() > 0 {
			item.Title = text(sel)
		}
		if href, ok := article.Find("a").First().Attr("href"); ok {
			item.URL = href
		}
		if sel := article.Find(".date"); sel.Length() > 0 {
			date := text(sel)
			item.Date = &date
		}
		items = append(items, item)
	})
	return items, nil
}

// Events scrapes the agenda. Cards without a title are skipped; an
// unparseable date leaves Date nil.
func (s *Scraper) Events(ctx context.Context) ([]Event, error) {
	doc, err := s.fetch(ctx, s.eventsURL)
	if err != nil {
		return nil, err
	}

	events := []Event{}
	doc.Find(".event-card").Each(func(_ int, card *goquery.Selection) {
		title := text(card.Find(".event-title"))
		if title == "" {
			return
		}
		event := Event{Title: title, Description: noDescription}
		if desc := text(card.Find(".event-description")); desc != "" {
			event.Description = desc
		}
		if raw := text(card.Find(".event-date")); raw != "" {
			if date, err := time.Parse(eventDateLayout, raw); err == nil {
				event.Date = &date
			}
		}
		events = append(events, event)
	})
	return events, nil
}
