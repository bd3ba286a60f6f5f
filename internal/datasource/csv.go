package datasource

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"time"

	"mwocomp/ingestion/internal/cache"
	"mwocomp/ingestion/internal/metrics"
)

// csvFetcher fetches tabular reference sources over HTTP with an optional
// Redis layer in front, so sibling processes and restarts share payloads
// within the TTL window.
type csvFetcher struct {
	httpClient *http.Client
	redis      *cache.RedisCache
	ttl        time.Duration
}

// fetch returns the source as header-keyed rows. The header row is required;
// missing columns surface when a table asks for them.
func (f *csvFetcher) fetch(ctx context.Context, url string) (*table, error) {
	body, ok := f.redis.Get(ctx, "csv:"+url)
	if ok {
		metrics.RecordCacheHit()
	} else {
		metrics.RecordCacheMiss()

		var err error
		body, err = f.download(ctx, url)
		if err != nil {
			return nil, err
		}
		f.redis.Set(ctx, "csv:"+url, body, f.ttl)
	}

	return parseTable(body)
}

func (f *csvFetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return body, nil
}

// table is a parsed CSV body with column access by header name.
type table struct {
	columns map[string]int
	rows    [][]string
}

func parseTable(body []byte) (*table, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parsing CSV: empty document")
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[name] = i
	}

	return &table{columns: columns, rows: records[1:]}, nil
}

// get returns one cell by header name; an unknown column is a format error
// of the source, reported once per load.
func (t *table) get(row []string, column string) (string, error) {
	idx, ok := t.columns[column]
	if !ok {
		return "", fmt.Errorf("missing column %q", column)
	}
	if idx >= len(row) {
		return "", fmt.Errorf("short row for column %q", column)
	}
	return row[idx], nil
}
