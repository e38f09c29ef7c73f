package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const maxAuthBodyExcerpt = 256

type authorizeResponse struct {
	Status string `json:"status"`
	Data   struct {
		AuthorizedRedirectURI string `json:"authorizedRedirectUri"`
	} `json:"data"`
}

// authorize exchanges the bearer token for the websocket URI of the feed.
func (s *Session) authorize(ctx context.Context) (url.URL, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, s.authTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxWithTimeout, http.MethodGet, s.authURL, nil)
	if err != nil {
		return url.URL{}, fmt.Errorf("%w: new request: %v", ErrAuth, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return url.URL{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return url.URL{}, fmt.Errorf("%w: read body: %v", ErrAuth, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return url.URL{}, fmt.Errorf("%w: status code %d: %s", ErrAuth, resp.StatusCode, excerpt(body))
	}

	var ar authorizeResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return url.URL{}, fmt.Errorf("%w: decode body: %v", ErrAuth, err)
	}
	if ar.Data.AuthorizedRedirectURI == "" {
		return url.URL{}, fmt.Errorf("%w: response has no authorizedRedirectUri: %s", ErrAuth, excerpt(body))
	}

	u, err := url.Parse(ar.Data.AuthorizedRedirectURI)
	if err != nil {
		return url.URL{}, fmt.Errorf("%w: redirect uri: %v", ErrAuth, err)
	}
	return *u, nil
}

func excerpt(body []byte) string {
	if len(body) > maxAuthBodyExcerpt {
		return string(body[:maxAuthBodyExcerpt]) + "..."
	}
	return string(body)
}
