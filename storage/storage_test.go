package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "receipt-1", []byte("hello")))

	data, err := store.Get(ctx, "receipt-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "receipt-1"))
	require.NoError(t, store.Delete(ctx, "receipt-1"))

	_, err = store.Get(ctx, "receipt-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../etc/passwd", "a/b", `a\b`} {
		_, err := store.Get(context.Background(), id)
		assert.Error(t, err, id)
		assert.NotErrorIs(t, err, ErrNotFound, id)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantErr     bool
		errContains string
	}{
		{
			name:   "local default",
			config: Config{LocalPath: t.TempDir()},
		},
		{
			name:        "local without path",
			config:      Config{Driver: "local"},
			wantErr:     true,
			errContains: "missing local storage path",
		},
		{
			name:        "s3 without bucket",
			config:      Config{Driver: "s3", S3Region: "eu-north-1"},
			wantErr:     true,
			errContains: "missing required S3 configuration",
		},
		{
			name:   "s3 with minio endpoint",
			config: Config{Driver: "s3", S3Region: "us-east-1", S3Bucket: "attachments", S3Endpoint: "http://localhost:9000", S3AccessKey: "abc123", S3SecretKey: "abcd1234"},
		},
		{
			name:        "http without url",
			config:      Config{Driver: "http"},
			wantErr:     true,
			errContains: "missing file gateway URL",
		},
		{
			name:   "http",
			config: Config{Driver: "http", GatewayURL: "http://files.local/"},
		},
		{
			name:        "unknown",
			config:      Config{Driver: "ftp"},
			wantErr:     true,
			errContains: "unsupported storage driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}

func newTestHTTPStore(t *testing.T, handler http.HandlerFunc, token string) *HTTPStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := newHTTPStore(Config{GatewayURL: server.URL, GatewayToken: token, GatewayMaxRetries: 2})
	store.httpClient.RetryWaitMin = time.Millisecond
	store.httpClient.RetryWaitMax = 5 * time.Millisecond
	return store
}

func TestHTTPStoreGet(t *testing.T) {
	var attempts atomic.Int32

	tests := []struct {
		name            string
		handler         http.HandlerFunc
		fileID          string
		expected        []byte
		wantNotFound    bool
		wantUnavailable bool
		wantAttempts    int32
	}{
		{
			name: "success with bearer token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				if r.Header.Get("Authorization") != "Bearer secret" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				assert.Equal(t, "/files/abc", r.URL.Path)
				io.WriteString(w, "receipt bytes")
			},
			fileID:       "abc",
			expected:     []byte("receipt bytes"),
			wantAttempts: 1,
		},
		{
			name: "not found is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				http.NotFound(w, r)
			},
			fileID:       "gone",
			wantNotFound: true,
			wantAttempts: 1,
		},
		{
			name: "transient failure is retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if attempts.Add(1) < 2 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				io.WriteString(w, "second time lucky")
			},
			fileID:       "flaky",
			expected:     []byte("second time lucky"),
			wantAttempts: 2,
		},
		{
			name: "persistent failure is unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
			},
			fileID:          "down",
			wantUnavailable: true,
			wantAttempts:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts.Store(0)
			store := newTestHTTPStore(t, tt.handler, "secret")

			data, err := store.Get(context.Background(), tt.fileID)
			assert.Equal(t, tt.wantAttempts, attempts.Load())

			switch {
			case tt.wantNotFound:
				assert.ErrorIs(t, err, ErrNotFound)
			case tt.wantUnavailable:
				var unavailable *UnavailableError
				require.True(t, errors.As(err, &unavailable), "expected UnavailableError, got %v", err)
				assert.Equal(t, "http", unavailable.Driver)
				assert.NotErrorIs(t, err, ErrNotFound)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.expected, data)
			}
		})
	}
}

func TestHTTPStorePutAndDelete(t *testing.T) {
	stored := map[string][]byte{}
	store := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/files/"):]
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			stored[id] = body
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			if _, ok := stored[id]; !ok {
				http.NotFound(w, r)
				return
			}
			delete(stored, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}, "")

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a1", []byte("data")))
	assert.Equal(t, []byte("data"), stored["a1"])

	require.NoError(t, store.Delete(ctx, "a1"))
	require.NoError(t, store.Delete(ctx, "a1"))
	assert.Empty(t, stored)
}

func TestHttpTransportWithBearer(t *testing.T) {
	token := "test_bearer_token"

	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != fmt.Sprintf("Bearer %s", token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer testServer.Close()

	client := &http.Client{Transport: &HttpTransportWithBearer{BaseTransport: http.DefaultTransport, Token: token}}
	req, err := http.NewRequest("GET", testServer.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, req.Header.Get("Authorization"), "original request must not be modified")
}
