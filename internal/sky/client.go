package sky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "skyq/0.1"

// httpClientTimeout bounds a single request/response cycle. Signed-URL
// downloads use their own client without this limit.
const httpClientTimeout = 60 * time.Second

// unauthorizedAction is the next step after a 401 response. The two branches
// are disjoint: a rejected subscription key must never burn a token refresh,
// and a stale token must never burn the secondary key.
type unauthorizedAction int

const (
	actionTrySecondaryKey unauthorizedAction = iota
	actionRefreshToken
)

// classify401 is the decision table for 401 responses: response signal →
// next action.
func classify401(body []byte) unauthorizedAction {
	if keyRejected(body) {
		return actionTrySecondaryKey
	}

	return actionRefreshToken
}

// keyRejected reports whether a 401 payload signals an invalid subscription
// key. The server contract is undocumented, so this matches the message
// substring the API is known to return; if Blackbaud ever publishes a
// structured error code, this is the only place to change.
func keyRejected(body []byte) bool {
	var payload struct {
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}

	return strings.Contains(strings.ToLower(payload.Message), "invalid subscription key")
}

// Client issues authenticated requests against the SKY API. It layers the
// subscription-key fallback and retry-on-unauthorized logic over the
// TokenManager.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// downloader has no overall timeout: artifact streams can legitimately
	// outlast any single-request budget. Cancellation comes from ctx.
	downloader *http.Client
	tokens     *TokenManager
	creds      Credentials
	logger     *slog.Logger
}

// NewClient creates a SKY API client.
// baseURL is typically "https://api.sky.blackbaud.com".
func NewClient(baseURL string, httpClient *http.Client, tokens *TokenManager, creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		downloader: &http.Client{},
		tokens:     tokens,
		creds:      creds,
		logger:     logger,
	}
}

// Request issues an authenticated call and returns the raw JSON response
// body. body (when non-nil) is marshaled to JSON.
//
// 401 handling is ordered: an invalid-subscription-key payload retries once
// with the secondary key (a second rejection is ErrSubscriptionKey, not
// retried further); any other 401 refreshes the access token and retries
// the original call once. Everything else maps to a RequestError carrying
// the error payload, with StatusCode -1 for transport failures.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	if err := c.tokens.EnsureSession(ctx); err != nil {
		return nil, err
	}

	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("sky: encoding request body: %w", err)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	resp, respBody, err := c.doOnce(ctx, method, reqURL, payload, c.creds.PrimaryKey)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp, respBody, err = c.handleUnauthorized(ctx, method, reqURL, payload, respBody)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Body:       errorText(respBody),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	c.logger.Debug("request succeeded",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return json.RawMessage(respBody), nil
}

// handleUnauthorized resolves a 401 via the decision table and returns the
// final response to classify.
func (c *Client) handleUnauthorized(
	ctx context.Context,
	method, reqURL string,
	payload, errBody []byte,
) (*http.Response, []byte, error) {
	switch classify401(errBody) {
	case actionTrySecondaryKey:
		c.logger.Warn("primary subscription key rejected, retrying with secondary key")

		resp, respBody, err := c.doOnce(ctx, method, reqURL, payload, c.creds.SecondaryKey)
		if err != nil {
			return nil, nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized && keyRejected(respBody) {
			c.logger.Error("secondary subscription key rejected")

			return nil, nil, &RequestError{
				StatusCode: http.StatusUnauthorized,
				Body:       errorText(respBody),
				Err:        ErrSubscriptionKey,
			}
		}

		return resp, respBody, nil

	default: // actionRefreshToken
		c.logger.Warn("unauthorized response, refreshing access token")

		if err := c.tokens.Refresh(ctx); err != nil {
			return nil, nil, &RequestError{
				StatusCode: http.StatusUnauthorized,
				Body:       "re-authentication required",
				Err:        ErrUnauthorized,
			}
		}

		resp, respBody, err := c.doOnce(ctx, method, reqURL, payload, c.creds.PrimaryKey)
		if err != nil {
			return nil, nil, err
		}

		return resp, respBody, nil
	}
}

// doOnce executes a single HTTP request with the given subscription key and
// reads the full response body. Transport failures map to StatusCode -1.
func (c *Client) doOnce(ctx context.Context, method, reqURL string, payload []byte, subKey string) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("sky: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.tokens.AccessToken())
	req.Header.Set("Bb-Api-Subscription-Key", subKey)
	req.Header.Set("User-Agent", userAgent)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("sky: request canceled: %w", ctx.Err())
		}

		return nil, nil, &RequestError{
			StatusCode: TransportStatus,
			Body:       err.Error(),
			Err:        ErrTransport,
		}
	}

	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &RequestError{
			StatusCode: TransportStatus,
			Body:       fmt.Sprintf("reading response body: %v", err),
			Err:        ErrTransport,
		}
	}

	return resp, respBody, nil
}

// errorText renders an API error payload for diagnostics: re-indented JSON
// when the body parses, raw text otherwise.
func errorText(body []byte) string {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return string(body)
	}

	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return string(body)
	}

	return string(pretty)
}
