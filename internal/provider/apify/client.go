// Package apify runs the LinkedIn profile scraping actor on Apify.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"outreach/internal/poller"
	"outreach/internal/provider"
)

const (
	providerName = "apify"
	maxBodyBytes = 32 << 20
)

// Client talks to the Apify REST API for one actor.
type Client struct {
	baseURL string
	token   string
	actorID string
	http    *http.Client
}

func New(baseURL, token, actorID string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, token: token, actorID: actorID, http: httpClient}
}

// Run identifies a started actor run and the dataset it writes to.
type Run struct {
	ID        string
	DatasetID string
}

type runEnvelope struct {
	Data *struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		StatusMessage    string `json:"statusMessage"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit starts one actor run over urls. Failures are never retried here.
func (c *Client) Submit(ctx context.Context, urls []string) (*Run, error) {
	body, err := json.Marshal(map[string]any{"profileUrls": urls})
	if err != nil {
		return nil, fmt.Errorf("encoding actor input: %w", err)
	}
	endpoint := fmt.Sprintf("%s/acts/%s/runs?%s", c.baseURL, url.PathEscape(c.actorID), c.tokenQuery())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building actor run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, provider.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	raw, err := provider.ReadBody(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, provider.Unavailable(providerName, err)
	}
	var env runEnvelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if provider.Retryable(resp.StatusCode) {
			return nil, provider.Unavailable(providerName, fmt.Errorf("status %d", resp.StatusCode))
		}
		rejected := &provider.RejectedError{Provider: providerName, Code: "HTTP_" + strconv.Itoa(resp.StatusCode)}
		if decodeErr == nil && env.Error != nil {
			if env.Error.Type != "" {
				rejected.Code = env.Error.Type
			}
			rejected.Message = env.Error.Message
		}
		return nil, rejected
	}
	if decodeErr != nil || env.Data == nil || env.Data.ID == "" {
		return nil, provider.Unavailable(providerName, fmt.Errorf("%w: run response without id", poller.ErrUnparseableResponse))
	}
	return &Run{ID: env.Data.ID, DatasetID: env.Data.DefaultDatasetID}, nil
}

// Status issues one run status query.
func (c *Client) Status(ctx context.Context, runID string) (poller.Status, error) {
	endpoint := fmt.Sprintf("%s/actor-runs/%s?%s", c.baseURL, url.PathEscape(runID), c.tokenQuery())
	raw, err := c.get(ctx, endpoint)
	if err != nil {
		return poller.Status{}, err
	}
	return ParseRunStatus(raw)
}

// ParseRunStatus classifies an actor run payload.
func ParseRunStatus(raw []byte) (poller.Status, error) {
	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return poller.Status{}, fmt.Errorf("%w: %v", poller.ErrUnparseableResponse, err)
	}
	if env.Data == nil || env.Data.Status == "" {
		return poller.Status{}, fmt.Errorf("%w: run status missing", poller.ErrUnparseableResponse)
	}

	st := poller.Status{Raw: env.Data.Status}
	switch env.Data.Status {
	case "READY", "RUNNING", "TIMING-OUT", "ABORTING":
		st.State = poller.InProgress
	case "SUCCEEDED":
		if env.Data.DefaultDatasetID == "" {
			return poller.Status{}, fmt.Errorf("%w: succeeded run without dataset", poller.ErrUnparseableResponse)
		}
		st.State = poller.Succeeded
		st.DatasetID = env.Data.DefaultDatasetID
	case "FAILED", "ABORTED", "TIMED-OUT":
		st.State = poller.Failed
		st.ErrorCode = env.Data.Status
		st.ErrorDetail = env.Data.StatusMessage
	default:
		return poller.Status{}, fmt.Errorf("%w: unknown run status %q", poller.ErrUnparseableResponse, env.Data.Status)
	}
	return st, nil
}

// FetchResults downloads the raw dataset items of a finished run.
func (c *Client) FetchResults(ctx context.Context, datasetID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/datasets/%s/items?%s&format=json", c.baseURL, url.PathEscape(datasetID), c.tokenQuery())
	return c.get(ctx, endpoint)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, provider.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.Unavailable(providerName, fmt.Errorf("status %d", resp.StatusCode))
	}
	raw, err := provider.ReadBody(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, provider.Unavailable(providerName, err)
	}
	return raw, nil
}

func (c *Client) tokenQuery() string {
	return url.Values{"token": {c.token}}.Encode()
}
