package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mwocomp/ingestion/internal/metrics"
	"mwocomp/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// TransportError is a per-match fetch failure: a non-200 status or a body
// that does not decode as match JSON. It aborts the current match only.
type TransportError struct {
	MatchID    int64
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching match %d: %v", e.MatchID, e.Err)
	}
	return fmt.Sprintf("fetching match %d: status=%d body=%s", e.MatchID, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is the competitive match API client. The URL template carries %1
// and %2 placeholders for the match ID and API key.
type Client struct {
	urlTemplate string
	apiKey      string
	mechListURL string
	httpClient  *http.Client
}

// NewClient creates a new match API client.
func NewClient(urlTemplate, apiKey, mechListURL string, timeout time.Duration) *Client {
	return &Client{
		urlTemplate: urlTemplate,
		apiKey:      apiKey,
		mechListURL: mechListURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// FetchMatch fetches the raw payload for one match ID. Failures come back as
// a *TransportError; there is no retry here, a failed match is reported and
// resubmitted by the operator.
func (c *Client) FetchMatch(ctx context.Context, matchID int64) (*models.MatchResponse, error) {
	url := strings.NewReplacer(
		"%1", strconv.FormatInt(matchID, 10),
		"%2", c.apiKey,
	).Replace(c.urlTemplate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	log.Debug().
		Int64("match_id", matchID).
		Msg("Fetching match data")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPICall("match", "error", time.Since(start).Seconds())
		return nil, &TransportError{MatchID: matchID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordAPICall("match", "error", time.Since(start).Seconds())
		return nil, &TransportError{MatchID: matchID, Err: err}
	}

	metrics.RecordAPICall("match", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			MatchID:    matchID,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 256),
		}
	}

	var payload models.MatchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &TransportError{MatchID: matchID, Err: fmt.Errorf("decoding match JSON: %w", err)}
	}

	log.Debug().
		Int64("match_id", matchID).
		Int("participants", len(payload.UserDetails)).
		Msg("Match data fetched")

	return &payload, nil
}

// mechListResponse wraps the public mech dictionary endpoint.
type mechListResponse struct {
	Mechs map[string]string `json:"Mechs"`
}

// FetchMechList fetches the public mech dictionary, keyed by item ID. Used
// by the new-mech check to spot catalog entries the reference CSV lacks.
func (c *Client) FetchMechList(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mechListURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPICall("mech_list", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("fetching mech list: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordAPICall("mech_list", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("reading mech list response: %w", err)
	}

	metrics.RecordAPICall("mech_list", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mech list returned status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var payload mechListResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding mech list: %w", err)
	}

	return payload.Mechs, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
