package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch-ai/firewatch/internal/errors"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config uses defaults", func(t *testing.T) {
		client := New(nil)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
	})

	t.Run("custom config", func(t *testing.T) {
		client := New(&Config{DefaultTimeout: 5 * time.Second, UserAgent: "firewatch-test/1.0"})
		assert.Equal(t, 5*time.Second, client.defaultTimeout)
		assert.Equal(t, "firewatch-test/1.0", client.userAgent)
	})

	t.Run("zero values use defaults", func(t *testing.T) {
		client := New(&Config{})
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.NotEmpty(t, client.userAgent)
	})
}

func TestDo_UserAgent(t *testing.T) {
	t.Parallel()

	var receivedUA string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClientWithConfig(t, &Config{UserAgent: "CustomAgent/2.0"})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)

	assert.Equal(t, "CustomAgent/2.0", receivedUA)
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	resp, err := client.Get(ctx, server.URL)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_DefaultTimeout(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClientWithConfig(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	resp, err := client.Get(t.Context(), server.URL)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_BodyReadableAfterReturnWithDefaultTimeout(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("x", 1<<16)))
	})
	client := newTestClientWithConfig(t, &Config{DefaultTimeout: 5 * time.Second})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, body, 1<<16)
}

func TestDo_Hooks(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t)

	var before, after atomic.Bool
	client.SetBeforeRequestHook(func(r *http.Request) {
		before.Store(true)
		assert.Equal(t, server.URL, r.URL.String())
	})
	client.SetAfterResponseHook(func(r *http.Request, resp *http.Response, err error) {
		after.Store(true)
		assert.NoError(t, err)
		assert.NotNil(t, resp)
	})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)

	assert.True(t, before.Load())
	assert.True(t, after.Load())
}

func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	client := New(&Config{Transport: transport, DefaultTimeout: time.Second})
	t.Cleanup(client.Close)
	return client, transport
}

func TestFetch(t *testing.T) {
	t.Parallel()

	const url = "https://firms.example.test/api/area/csv/KEY/MODIS_NRT/-125,32,-114,42/1"

	t.Run("success returns body", func(t *testing.T) {
		client, transport := newMockedClient(t)
		transport.RegisterResponder(http.MethodGet, url, httpmock.NewStringResponder(http.StatusOK, "latitude,longitude\n"))

		body, resp, err := client.Fetch(t.Context(), url, "firms")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "latitude,longitude\n", string(body))
	})

	t.Run("non-2xx is an upstream error carrying the status", func(t *testing.T) {
		client, transport := newMockedClient(t)
		transport.RegisterResponder(http.MethodGet, url, httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))

		body, resp, err := client.Fetch(t.Context(), url, "firms")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, "down", string(body))
		assert.True(t, errors.IsCategory(err, errors.CategoryUpstream))
		assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	})

	t.Run("transport failure is an upstream error", func(t *testing.T) {
		client, transport := newMockedClient(t)
		transport.RegisterResponder(http.MethodGet, url, httpmock.NewErrorResponder(errors.NewStd("connection reset")))

		_, resp, err := client.Fetch(t.Context(), url, "firms")
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.True(t, errors.IsCategory(err, errors.CategoryUpstream))
		assert.Zero(t, StatusCode(err))
	})
}

func TestClose(t *testing.T) {
	t.Parallel()

	client := New(nil)
	client.Close()
	client.Close()
}
