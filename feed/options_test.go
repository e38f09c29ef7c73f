package feed

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	t.Setenv("LTPALERT_FEED_AUTH_URL", "")
	t.Setenv("LTPALERT_FEED_ACCESS_TOKEN", "")

	o := defaultOptions()
	assert.Equal(t, DefaultAuthURL, o.authURL)
	assert.Empty(t, o.accessToken)
	assert.Equal(t, 10*time.Second, o.authTimeout)
	assert.Equal(t, pingPeriod, o.pingPeriod)
	assert.EqualValues(t, 1<<20, o.readLimit)
	assert.NotNil(t, o.connCreator)
	assert.NotNil(t, o.logger)
}

func TestDefaultOptionsFromEnv(t *testing.T) {
	t.Setenv("LTPALERT_FEED_AUTH_URL", "http://localhost:1234/authorize")
	t.Setenv("LTPALERT_FEED_ACCESS_TOKEN", "env-token")

	o := defaultOptions()
	assert.Equal(t, "http://localhost:1234/authorize", o.authURL)
	assert.Equal(t, "env-token", o.accessToken)
}

func TestApplyOptions(t *testing.T) {
	t.Setenv("LTPALERT_FEED_ACCESS_TOKEN", "env-token")
	client := &http.Client{}

	o := defaultOptions()
	o.applyAll(
		WithAuthURL("http://auth"),
		WithAccessToken(""),
		WithHTTPClient(client),
		WithAuthTimeout(-time.Second),
		WithPingPeriod(0),
		WithReadLimit(4096),
	)
	assert.Equal(t, "http://auth", o.authURL)
	assert.Equal(t, "env-token", o.accessToken, "empty token must not override")
	assert.Same(t, client, o.httpClient)
	assert.Equal(t, 10*time.Second, o.authTimeout)
	assert.Zero(t, o.pingPeriod)
	assert.EqualValues(t, 4096, o.readLimit)

	o.applyAll(WithAccessToken("explicit"), WithAuthTimeout(time.Second))
	assert.Equal(t, "explicit", o.accessToken)
	assert.Equal(t, time.Second, o.authTimeout)
}
