package eventstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/strixlabs/strix-anomaly/internal/models"
)

// Config holds OpenSearch connection settings for the event index.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	Index         string

	// MaxEvents caps one window fetch. Per-organization event volumes fit a
	// single page; paging can come later if an index outgrows this.
	MaxEvents int
}

// DefaultConfig returns sensible defaults for a local OpenSearch.
func DefaultConfig() Config {
	return Config{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
		Index:         "strix-events",
		MaxEvents:     10000,
	}
}

// OpenSearchSource reads event records from an OpenSearch index.
type OpenSearchSource struct {
	client *opensearch.Client
	config Config
}

// NewOpenSearchSource creates a source for the configured index.
func NewOpenSearchSource(cfg Config) (*OpenSearchSource, error) {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultConfig().MaxEvents
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	return &OpenSearchSource{client: client, config: cfg}, nil
}

type searchHit struct {
	Source eventDocument `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// eventDocument is the indexed event shape. Timestamp mirrors what the
// ingestion layer writes; the record's own Time string is kept verbatim for
// the feature builder to parse.
type eventDocument struct {
	Timestamp       time.Time `json:"@timestamp"`
	Time            string    `json:"time"`
	Channel         string    `json:"channel"`
	Severity        string    `json:"severity"`
	User            string    `json:"user"`
	Process         string    `json:"process"`
	Details         string    `json:"details"`
	Source          string    `json:"source"`
	EventID         int       `json:"event_id"`
	Image           string    `json:"image"`
	CommandLine     string    `json:"command_line"`
	ParentImage     string    `json:"parent_image"`
	DestinationIP   string    `json:"destination_ip"`
	DestinationPort string    `json:"destination_port"`
}

// FetchEvents returns the events in [from, to), oldest first.
func (s *OpenSearchSource) FetchEvents(ctx context.Context, from, to time.Time) ([]models.EventRecord, error) {
	query := map[string]interface{}{
		"size": s.config.MaxEvents,
		"sort": []map[string]interface{}{
			{"@timestamp": map[string]interface{}{"order": "asc"}},
		},
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"@timestamp": map[string]interface{}{
					"gte": from.UTC().Format(time.RFC3339),
					"lt":  to.UTC().Format(time.RFC3339),
				},
			},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal search query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{s.config.Index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search events: status %s: %s", res.Status(), msg)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	events := make([]models.EventRecord, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		events = append(events, hit.Source.toRecord())
	}
	return events, nil
}

func (d eventDocument) toRecord() models.EventRecord {
	record := models.EventRecord{
		Time:            d.Time,
		Channel:         d.Channel,
		Severity:        d.Severity,
		User:            d.User,
		Process:         d.Process,
		Details:         d.Details,
		Source:          d.Source,
		EventID:         d.EventID,
		Image:           d.Image,
		CommandLine:     d.CommandLine,
		ParentImage:     d.ParentImage,
		DestinationIP:   d.DestinationIP,
		DestinationPort: d.DestinationPort,
	}
	if record.Time == "" && !d.Timestamp.IsZero() {
		record.Time = d.Timestamp.Format(time.RFC3339)
	}
	return record
}
