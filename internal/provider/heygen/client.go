// Package heygen generates avatar videos through the HeyGen API.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"outreach/internal/poller"
	"outreach/internal/provider"
)

const (
	providerName = "heygen"
	maxBodyBytes = 1 << 20
)

// Client submits scripts for one avatar and voice.
type Client struct {
	baseURL  string
	apiKey   string
	avatarID string
	voiceID  string
	http     *http.Client
}

func New(baseURL, apiKey, avatarID, voiceID string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, avatarID: avatarID, voiceID: voiceID, http: httpClient}
}

type generateRequest struct {
	VideoInputs []videoInput `json:"video_inputs"`
	Test        bool         `json:"test"`
	Dimension   dimension    `json:"dimension"`
}

type videoInput struct {
	Character character `json:"character"`
	Voice     voice     `json:"voice"`
}

type character struct {
	Type     string  `json:"type"`
	AvatarID string  `json:"avatar_id"`
	Scale    float64 `json:"scale"`
}

type voice struct {
	Type      string `json:"type"`
	VoiceID   string `json:"voice_id"`
	InputText string `json:"input_text"`
}

type dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// apiError tolerates numeric and string codes; HeyGen uses both.
type apiError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
}

func (e *apiError) code() string {
	if e == nil || len(e.Code) == 0 || string(e.Code) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		return s
	}
	return strings.Trim(string(e.Code), `"`)
}

// Submit asks HeyGen to render script. The returned id is the handle to poll.
func (c *Client) Submit(ctx context.Context, script string) (string, error) {
	body, err := json.Marshal(generateRequest{
		VideoInputs: []videoInput{{
			Character: character{Type: "avatar", AvatarID: c.avatarID, Scale: 1.0},
			Voice:     voice{Type: "text", VoiceID: c.voiceID, InputText: script},
		}},
		Dimension: dimension{Width: 1280, Height: 720},
	})
	if err != nil {
		return "", fmt.Errorf("encoding generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/video/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", provider.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	raw, err := provider.ReadBody(resp.Body, maxBodyBytes)
	if err != nil {
		return "", provider.Unavailable(providerName, err)
	}
	var env struct {
		Data *struct {
			VideoID string `json:"video_id"`
		} `json:"data"`
		Error *apiError `json:"error"`
	}
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if provider.Retryable(resp.StatusCode) {
			return "", provider.Unavailable(providerName, fmt.Errorf("status %d", resp.StatusCode))
		}
		rejected := &provider.RejectedError{Provider: providerName, Code: "HTTP_" + strconv.Itoa(resp.StatusCode)}
		if decodeErr == nil && env.Error != nil {
			if code := env.Error.code(); code != "" {
				rejected.Code = code
			}
			rejected.Message = env.Error.Message
		}
		return "", rejected
	}
	if decodeErr == nil && env.Error != nil && env.Error.code() != "" {
		return "", &provider.RejectedError{Provider: providerName, Code: env.Error.code(), Message: env.Error.Message}
	}
	if decodeErr != nil || env.Data == nil || env.Data.VideoID == "" {
		return "", provider.Unavailable(providerName, fmt.Errorf("%w: generate response without video_id", poller.ErrUnparseableResponse))
	}
	return env.Data.VideoID, nil
}

// Status issues one video status query.
func (c *Client) Status(ctx context.Context, videoID string) (poller.Status, error) {
	endpoint := c.baseURL + "/v1/video_status.get?" + url.Values{"video_id": {videoID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return poller.Status{}, fmt.Errorf("building status request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return poller.Status{}, provider.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return poller.Status{}, provider.Unavailable(providerName, fmt.Errorf("status %d", resp.StatusCode))
	}
	raw, err := provider.ReadBody(resp.Body, maxBodyBytes)
	if err != nil {
		return poller.Status{}, provider.Unavailable(providerName, err)
	}
	return ParseVideoStatus(raw)
}

// ParseVideoStatus classifies a video_status.get payload.
func ParseVideoStatus(raw []byte) (poller.Status, error) {
	var env struct {
		Data *struct {
			Status   string    `json:"status"`
			VideoURL string    `json:"video_url"`
			Duration float64   `json:"duration"`
			Error    *apiError `json:"error"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return poller.Status{}, fmt.Errorf("%w: %v", poller.ErrUnparseableResponse, err)
	}
	if env.Data == nil || env.Data.Status == "" {
		return poller.Status{}, fmt.Errorf("%w: video status missing", poller.ErrUnparseableResponse)
	}

	d := env.Data
	st := poller.Status{Raw: d.Status}
	switch d.Status {
	case "pending", "waiting", "processing":
		st.State = poller.InProgress
	case "completed":
		if d.VideoURL == "" {
			return poller.Status{}, fmt.Errorf("%w: completed video without url", poller.ErrUnparseableResponse)
		}
		st.State = poller.Succeeded
		st.ArtifactURL = d.VideoURL
		st.DurationSeconds = d.Duration
	case "failed":
		st.State = poller.Failed
		st.ErrorCode = d.Error.code()
		if st.ErrorCode == "" {
			st.ErrorCode = "VIDEO_FAILED"
		}
		if d.Error != nil {
			st.ErrorDetail = d.Error.Message
			if st.ErrorDetail == "" {
				st.ErrorDetail = d.Error.Detail
			}
		}
	default:
		return poller.Status{}, fmt.Errorf("%w: unknown video status %q", poller.ErrUnparseableResponse, d.Status)
	}
	return st, nil
}
