package platform

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient is a small JSON client used by the CLI to push
// observation batches at a running server.
type HTTPClient struct {
	Client  *http.Client
	Retries int
	APIKey  string
	Logger  zerolog.Logger
}

func NewHTTPClient(retries int, timeout time.Duration, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		Client: &http.Client{
			Timeout: timeout,
		},
		Retries: retries,
		Logger:  logger,
	}
}

// PostJSON posts a JSON body, retrying on transport errors and 5xx
// responses with exponential backoff. 4xx responses are returned
// without retry.
func (c *HTTPClient) PostJSON(url string, body []byte) (*http.Response, error) {
	var resp *http.Response
	var err error

	for i := 0; i <= c.Retries; i++ {
		req, rErr := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
		if rErr != nil {
			return nil, rErr
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("X-API-Key", c.APIKey)
		}

		resp, err = c.Client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if i < c.Retries {
			c.Logger.Warn().Str("url", url).Int("attempt", i+1).Err(err).Msg("HTTP request failed, retrying")
			time.Sleep(time.Duration(1<<i) * 200 * time.Millisecond)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d retries: %w", c.Retries, err)
	}
	return resp, nil // return last response even if 500
}
