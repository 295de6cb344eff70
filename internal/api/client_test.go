package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/eventstream/internal/connection"
)

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://host.example.com")

		if c.baseURL != "https://host.example.com" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://host.example.com")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
		if c.infoPath != DefaultInfoPath {
			t.Errorf("infoPath = %q, want %q", c.infoPath, DefaultInfoPath)
		}
		if !strings.HasPrefix(c.header.Get("User-Agent"), "eventstream/") {
			t.Errorf("User-Agent = %q", c.header.Get("User-Agent"))
		}
		if c.header.Get(InstanceHeader) != "" {
			t.Error("instance header should be unset")
		}
	})

	t.Run("with options", func(t *testing.T) {
		hc := &http.Client{}
		c := NewClient("https://host.example.com",
			WithHTTPClient(hc),
			WithTimeout(5*time.Second),
			WithRetries(5, 2*time.Second),
			WithInstanceID("abc"),
			WithLogger(nil),
		)
		if c.httpClient != hc || hc.Timeout != 5*time.Second {
			t.Errorf("http client not applied: %+v", c.httpClient)
		}
		if c.maxRetries != 5 || c.retryBackoff != 2*time.Second {
			t.Errorf("retries = %d/%v, want 5/2s", c.maxRetries, c.retryBackoff)
		}
		if got := c.header.Get(InstanceHeader); got != "abc" {
			t.Errorf("instance header = %q, want abc", got)
		}
		if c.logger == nil {
			t.Error("nil logger should fall back to default")
		}
	})
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := &APIError{StatusCode: tt.code, Message: http.StatusText(tt.code)}
			if got := err.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if err.Error() == "" {
				t.Error("Error() should not be empty")
			}
		})
	}
}

func infoServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, WithRetries(3, time.Millisecond))
}

func TestResolve(t *testing.T) {
	var header string
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/connection-info" {
			http.NotFound(w, r)
			return
		}
		header = r.Header.Get(InstanceHeader)
		fmt.Fprint(w, `{"connectionId":"conn-9","url":"wss://stream.example.com/ws"}`)
	})
	WithInstanceID("instance-1")(c)

	info, err := c.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "conn-9", info.ConnectionID)
	assert.Equal(t, "wss://stream.example.com/ws", info.URL)
	assert.Equal(t, "instance-1", header)
}

func TestResolve_InfoPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/info" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"connectionId":"c","url":"ws://x"}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithInfoPath("/v2/info"), WithRetries(0, time.Millisecond))
	info, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://x", info.URL)
}

func TestResolve_RelativeURL(t *testing.T) {
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"connectionId":"c","url":"/ws?x=1"}`)
	})

	info, err := c.Resolve(context.Background())
	require.NoError(t, err)

	assert.Regexp(t, `^ws://127\.0\.0\.1:\d+/ws\?x=1$`, info.URL)
}

func TestResolve_IncompleteInfo(t *testing.T) {
	bodies := []string{
		`{"connectionId":"c","url":""}`,
		`{"connectionId":"","url":"ws://x"}`,
		`{}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			})

			_, err := c.Resolve(context.Background())
			assert.ErrorIs(t, err, ErrIncompleteInfo)
		})
	}
}

func TestResolve_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"connectionId":"c","url":"ws://x"}`)
	})

	_, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResolve_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := c.Resolve(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus three retries")
}

func TestResolve_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no", http.StatusForbidden)
	})

	_, err := c.Resolve(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolve_BadJSON(t *testing.T) {
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{not json`)
	})

	_, err := c.Resolve(context.Background())
	assert.ErrorContains(t, err, "unmarshal response")
}

func TestResolve_ContextCanceled(t *testing.T) {
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})
	c.retryBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Resolve(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestResolve_CoalescesConcurrentCalls(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		fmt.Fprint(w, `{"connectionId":"c","url":"ws://x"}`)
	})

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Resolve(context.Background())
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolve_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		fmt.Fprint(w, `{"connectionId":"c","url":"ws://x"}`)
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Resolve(firstCtx)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		info connection.Info
		err  error
	}
	second := make(chan result, 1)
	go func() {
		info, err := c.Resolve(context.Background())
		second <- result{info, err}
	}()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.flight != nil && c.flight.waiters == 2
	}, time.Second, time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, "ws://x", res.info.URL)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolve_AbandonedRequestIsNotReused(t *testing.T) {
	var calls atomic.Int32
	c := infoServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			<-r.Context().Done()
			return
		}
		fmt.Fprint(w, `{"connectionId":"c","url":"ws://x"}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Resolve(ctx)
		errc <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	info, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c", info.ConnectionID)
	assert.Equal(t, int32(2), calls.Load())
}
