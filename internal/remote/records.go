package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Row is one table row as sent to or returned by the REST endpoint.
type Row map[string]any

const restPrefix = "/rest/v1/"

// Upsert creates or updates row in table, keyed by its "id" column. The
// call is idempotent: repeating it with the same row leaves one record.
func (c *Client) Upsert(ctx context.Context, table string, row Row) error {
	if _, ok := row["id"]; !ok {
		return fmt.Errorf("remote: upsert into %s: row has no id", table)
	}

	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("remote: encoding row for %s: %w", table, err)
	}

	header := http.Header{}
	header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	path := restPrefix + url.PathEscape(table) + "?on_conflict=id"

	resp, err := c.do(ctx, http.MethodPost, path, body, header)
	if err != nil {
		return fmt.Errorf("remote: upsert into %s: %w", table, err)
	}

	drain(resp)

	return nil
}

// Fetch returns the row of table whose id equals id, or ErrNotFound.
func (c *Client) Fetch(ctx context.Context, table, id string) (Row, error) {
	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("select", "*")

	path := restPrefix + url.PathEscape(table) + "?" + query.Encode()

	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: fetching %s/%s: %w", table, id, err)
	}
	defer resp.Body.Close()

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("remote: decoding %s/%s: %w", table, id, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("remote: %s/%s: %w", table, id, ErrNotFound)
	}

	return rows[0], nil
}

// Health performs one unretried GET of path. Any HTTP response below 500
// means the backend is reachable; network errors and 5xx mean it is not.
// The request carries only the API key, so an expired user token does not
// read as an outage.
func (c *Client) Health(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("remote: health check: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: health check: %w", err)
	}

	drain(resp)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("remote: health check: HTTP %d: %w", resp.StatusCode, ErrServerError)
	}

	return nil
}

// drain discards and closes a response body so the connection is reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
