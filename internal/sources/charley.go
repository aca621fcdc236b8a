package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/models"
)

// CharleyAdapter reads a WordPress-style RSS feed of missing-person
// write-ups. The feed has no structured fields beyond title/link/date, so
// age, gender and location are mined from the description prose.
type CharleyAdapter struct {
	cfg    config.SourceConfig
	client *Client
	logger *zap.Logger
}

func NewCharleyAdapter(cfg config.SourceConfig, retry *config.SourcesConfig, logger *zap.Logger) *CharleyAdapter {
	client := NewClient(cfg.BaseURL, cfg.RateLimit, *retry, logger).
		SetAccept("application/rss+xml, application/xml, text/xml")
	return &CharleyAdapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("source", string(models.SourceCharley))),
	}
}

func (a *CharleyAdapter) Source() models.Source { return models.SourceCharley }

type charleyItem struct {
	Title       string `xml:"title" json:"title"`
	Link        string `xml:"link" json:"link"`
	GUID        string `xml:"guid" json:"guid"`
	PubDate     string `xml:"pubDate" json:"pubDate"`
	Description string `xml:"description" json:"description"`
}

type charleyFeed struct {
	Channel struct {
		Items []charleyItem `xml:"item"`
	} `xml:"channel"`
}

func (a *CharleyAdapter) Fetch(ctx context.Context, opts FetchOptions) (Page, error) {
	body, err := a.client.GetBytes(ctx, "", map[string]string{
		"paged": fmt.Sprintf("%d", opts.Page),
	})
	if err != nil {
		return Page{}, fmt.Errorf("charley feed page %d: %w", opts.Page, err)
	}

	var feed charleyFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		// a broken feed stops pagination but is not a run-level failure
		a.logger.Warn("malformed feed, treating as end of data",
			zap.Int("page", opts.Page), zap.Error(err))
		return Page{}, nil
	}

	items := make([]RawItem, 0, len(feed.Channel.Items))
	for _, entry := range feed.Channel.Items {
		payload, err := json.Marshal(entry)
		if err != nil {
			a.logger.Warn("dropping unmarshalable feed entry", zap.String("title", entry.Title), zap.Error(err))
			continue
		}
		items = append(items, RawItem{ID: charleyExternalID(entry), Payload: payload})
	}

	// An RSS feed never reports a page count; an empty page is the stop signal.
	return Page{Items: items, HasMore: len(items) > 0}, nil
}

func charleyExternalID(e charleyItem) string {
	if e.GUID != "" {
		return e.GUID
	}
	if e.Link != "" {
		return e.Link
	}
	return "charley-synth-" + uuid.NewString()
}

var missingSinceRe = regexp.MustCompile(`(?i)missing (?:since|from)\s+([A-Za-z]+ \d{1,2}, \d{4})`)

func (a *CharleyAdapter) Normalize(raw RawItem) (models.CanonicalRecord, error) {
	var e charleyItem
	if err := json.Unmarshal(raw.Payload, &e); err != nil {
		return models.CanonicalRecord{}, fmt.Errorf("charley payload: %w", err)
	}

	firstName, lastName := charleyName(e)

	rec := models.CanonicalRecord{
		ExternalID:       raw.ID,
		Source:           models.SourceCharley,
		FirstName:        firstName,
		LastName:         lastName,
		NameNormalized:   NormalizeName(firstName, lastName),
		Gender:           ExtractGender(e.Description),
		Age:              ExtractAge(e.Description),
		LastSeenLocation: ExtractLocation(e.Description),
		Status:           models.StatusMissing,
		RawData:          raw.Payload,
	}

	if m := missingSinceRe.FindStringSubmatch(e.Description); m != nil {
		rec.MissingDate = ParseDate(m[1])
	}
	if e.Link != "" {
		link := e.Link
		rec.SourceURL = &link
	}

	return rec, nil
}

// charleyName prefers the entry title (the feed titles posts with the
// person's name); failing that it falls back to the capitalized-run
// heuristic over the prose.
func charleyName(e charleyItem) (*string, *string) {
	title := strings.TrimSpace(e.Title)
	if title != "" {
		words := strings.Fields(title)
		if len(words) >= 2 {
			first := words[0]
			last := strings.Join(words[1:], " ")
			return &first, &last
		}
		return &title, nil
	}
	return ExtractName(e.Description)
}

func (a *CharleyAdapter) Status(ctx context.Context) Status {
	return probeStatus(ctx, a)
}
