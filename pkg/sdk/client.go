package supportgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kailas-cloud/supportgraph/internal/version"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client is the supportgraph ops API client.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	apiKey  string
	obs     *observer
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("supportgraph: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("supportgraph: base url must be absolute, got %q", baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{baseURL: u, http: hc, apiKey: cfg.apiKey, obs: obs}, nil
}

// SubmitJob runs a job synchronously. When the job fails as a whole the
// report is returned together with ErrJobFailed.
func (c *Client) SubmitJob(ctx context.Context, entityIDs []string, opts *JobOptions) (_ *Report, err error) {
	done := c.obs.begin(ctx, opSubmitJob)
	defer func() { done(err) }()

	body := struct {
		EntityIDs []string    `json:"entity_ids"`
		Options   *JobOptions `json:"options,omitempty"`
	}{EntityIDs: entityIDs, Options: opts}

	var report Report
	status, err := c.do(ctx, http.MethodPost, "/jobs", nil, body, &report, http.StatusUnprocessableEntity)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnprocessableEntity {
		return &report, fmt.Errorf("%w: %s", ErrJobFailed, report.Error)
	}
	return &report, nil
}

// GetJob returns a persisted job by id.
func (c *Client) GetJob(ctx context.Context, id string) (_ *Job, err error) {
	done := c.obs.begin(ctx, opGetJob)
	defer func() { done(err) }()

	var j Job
	if _, err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Similar returns entities related to entityID, best first.
func (c *Client) Similar(ctx context.Context, entityID string, q SimilarQuery) (_ []Candidate, err error) {
	done := c.obs.begin(ctx, opSimilar)
	defer func() { done(err) }()

	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.MinScore > 0 {
		params.Set("min_score", strconv.FormatFloat(q.MinScore, 'f', -1, 64))
	}
	for _, kw := range q.Keywords {
		params.Add("keyword", kw)
	}

	var resp struct {
		Candidates []Candidate `json:"candidates"`
	}
	path := "/entities/" + url.PathEscape(entityID) + "/similar"
	if _, err := c.do(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

// Suggestions lists suggestions derived for entityID.
func (c *Client) Suggestions(ctx context.Context, entityID string) (_ []Suggestion, err error) {
	done := c.obs.begin(ctx, opSuggestions)
	defer func() { done(err) }()

	var resp struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	path := "/entities/" + url.PathEscape(entityID) + "/suggestions"
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// Health checks the health of all system components. An unhealthy server
// still returns its report.
func (c *Client) Health(ctx context.Context) (_ HealthStatus, err error) {
	done := c.obs.begin(ctx, opHealth)
	defer func() { done(err) }()

	var h HealthStatus
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h, http.StatusServiceUnavailable); err != nil {
		return HealthStatus{}, err
	}
	return h, nil
}

// do sends a request and decodes a 2xx response, or any status in accept, into out.
func (c *Client) do(
	ctx context.Context, method, path string, query url.Values, in, out any, accept ...int,
) (int, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("supportgraph: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, fmt.Errorf("supportgraph: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("sdk"))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("supportgraph: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, s := range accept {
		ok = ok || resp.StatusCode == s
	}
	if !ok {
		return resp.StatusCode, decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("supportgraph: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		return apiErr
	}
	apiErr.Code = "http_error"
	apiErr.Message = strings.TrimSpace(string(data))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
