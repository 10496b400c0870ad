package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		path   string
		want   string
	}{
		{"no prefix", "", "/products", "/products"},
		{"prefix prepended", "/api", "/products", "/api/products"},
		{"prefix already present", "/api", "/api/products", "/api/products"},
		{"missing slash inserted", "/api", "products", "/api/products"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinPrefix(tt.prefix, tt.path))
		})
	}
}

func TestURLJoining(t *testing.T) {
	c := New(Config{BaseURL: "http://host:3000/", Prefix: "/api"})
	assert.Equal(t, "http://host:3000/api/products", c.URL("/products"))

	c = New(Config{BaseURL: "http://host:3000"})
	assert.Equal(t, "http://host:3000/products", c.URL("products"))
}

func TestCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1}]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Prefix: "/api"})
	resp := c.Call(context.Background(), "GET", "/products", nil)

	assert.Empty(t, resp.Err)
	assert.Equal(t, http.StatusOK, resp.Status)
	items := resp.Body.([]interface{})
	require.Len(t, items, 1)
}

func TestCallSanitizesException(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"exception": "NoResultFound", "message": "Not Found", "traceback": ["secret internals"]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	resp := c.Call(context.Background(), "GET", "/missing", nil)

	assert.Equal(t, "Not Found", resp.Err)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	m := resp.Map()
	assert.Equal(t, "Not Found", m["error"])
	assert.Equal(t, http.StatusNotFound, m["status"])
	assert.NotContains(t, m, "traceback")
}

func TestCallRawTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream proxy error"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	resp := c.Call(context.Background(), "GET", "/x", nil)

	assert.Empty(t, resp.Err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Equal(t, "upstream proxy error", resp.Body)
}

func TestCallOmitsBodyForGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.Empty(t, data, "GET must carry no body")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	resp := c.Call(context.Background(), "GET", "/", map[string]interface{}{"ignored": true})
	assert.Empty(t, resp.Err)
}

func TestCallSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "widget", body["name"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	resp := c.Call(context.Background(), "POST", "/products", map[string]interface{}{"name": "widget"})

	assert.Equal(t, http.StatusCreated, resp.Status)
}

func TestCallHeaderMerge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc123", r.Header.Get("Authorization"))
		// Caller-configured value wins over the default
		assert.Equal(t, "application/vnd.custom+json", r.Header.Get("Accept"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL: srv.URL,
		Headers: map[string]string{
			"Authorization": "Bearer abc123",
			"Accept":        "application/vnd.custom+json",
		},
	})
	resp := c.Call(context.Background(), "GET", "/", nil)
	assert.Empty(t, resp.Err)
}

func TestCallTransportFailureResolves(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	resp := c.Call(context.Background(), "GET", "/x", nil)

	assert.NotEmpty(t, resp.Err)
	assert.Equal(t, 0, resp.Status)
}

func TestCallLogRecordsEveryCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			w.WriteHeader(http.StatusBadGateway)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	log := NewCallLog()
	c.SetRecorder(log)

	c.Call(context.Background(), "get", "/a", nil)
	c.Call(context.Background(), "POST", "/b", map[string]interface{}{"x": 1})

	calls := log.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "GET", calls[0].Method)
	assert.Equal(t, http.StatusOK, calls[0].Status)
	assert.Equal(t, "POST", calls[1].Method)
	assert.Equal(t, http.StatusBadGateway, calls[1].Status)

	// Transport failures are recorded with status 0
	failing := New(Config{BaseURL: "http://127.0.0.1:1"})
	failing.SetRecorder(log)
	failing.Call(context.Background(), "GET", "/x", nil)
	calls = log.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, 0, calls[2].Status)
}
