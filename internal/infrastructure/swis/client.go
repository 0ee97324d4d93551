// Package swis runs SWQL through the SolarWinds Information Service REST API,
// the endpoint the Orion SDK and SwisPowerShell talk to.
package swis

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"healthcheck_srv/internal/domain/report"
)

const (
	DefaultPort    = 17774
	DefaultTimeout = 2 * time.Minute

	queryPath = "/SolarWinds/InformationService/v3/Json/Query"

	// error bodies are only read this far
	maxErrorBody = 64 << 10
)

// Config holds the connection settings for one Orion server.
type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	InsecureSkipVerify bool
	Timeout            time.Duration

	// BaseURL replaces https://Host:Port when set.
	BaseURL string
}

// StatusError is returned when SWIS answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("swis: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("swis: status %d: %s", e.StatusCode, e.Message)
}

// Client implements QueryExecutor on top of SWIS.
type Client struct {
	endpoint string
	username string
	password string
	http     *http.Client
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		if cfg.Host == "" {
			return nil, errors.New("swis: host cannot be empty")
		}
		port := cfg.Port
		if port == 0 {
			port = DefaultPort
		}
		base = fmt.Sprintf("https://%s:%d", cfg.Host, port)
	}
	endpoint, err := url.JoinPath(base, queryPath)
	if err != nil {
		return nil, fmt.Errorf("swis: invalid base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		// Orion installs with a self-signed certificate on 17774
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		endpoint: endpoint,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

type queryRequest struct {
	Query      string         `json:"query"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Execute runs a SWQL query without parameters.
func (c *Client) Execute(ctx context.Context, swql string) (report.Table, error) {
	return c.Query(ctx, swql, nil)
}

// Query runs a SWQL query. Columns follow the property order SWIS returns,
// which matches the select list.
func (c *Client) Query(ctx context.Context, swql string, params map[string]any) (report.Table, error) {
	body, err := json.Marshal(queryRequest{Query: swql, Parameters: params})
	if err != nil {
		return report.Table{}, fmt.Errorf("swis: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return report.Table{}, fmt.Errorf("swis: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return report.Table{}, fmt.Errorf("swis: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return report.Table{}, statusError(resp)
	}

	var payload struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return report.Table{}, fmt.Errorf("swis: failed to decode response: %w", err)
	}

	return decodeResults(payload.Results)
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var fault struct {
		Message string `json:"Message"`
	}
	if json.Unmarshal(data, &fault) == nil && fault.Message != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: fault.Message}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
}

// decodeResults flattens result objects into rows. Properties that first
// show up in a later row become new columns, with earlier rows padded.
func decodeResults(results []json.RawMessage) (report.Table, error) {
	table := report.Table{Columns: []string{}, Rows: make([][]any, 0, len(results))}
	position := make(map[string]int)

	for i, raw := range results {
		keys, values, err := decodeObject(raw)
		if err != nil {
			return report.Table{}, fmt.Errorf("swis: result %d: %w", i, err)
		}
		for _, k := range keys {
			if _, ok := position[k]; !ok {
				position[k] = len(table.Columns)
				table.Columns = append(table.Columns, k)
			}
		}

		row := make([]any, len(table.Columns))
		for j, k := range keys {
			row[position[k]] = values[j]
		}
		table.Rows = append(table.Rows, row)
	}

	for i, row := range table.Rows {
		if len(row) < len(table.Columns) {
			padded := make([]any, len(table.Columns))
			copy(padded, row)
			table.Rows[i] = padded
		}
	}
	return table, nil
}

func decodeObject(raw json.RawMessage) ([]string, []any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	var values []any
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected property name, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, normalize(v))
	}
	return keys, values, nil
}

func normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
