package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entitiesBody = `{"data":{"actor":{"entitySearch":{"results":{"entities":[
  {"name":"checkout","apmSummary":{"apdexScore":0.97}}
]}}}}}`

func TestClient_Query(t *testing.T) {
	var gotMethod, gotKey, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get(APIKeyHeader)
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(entitiesBody))
	}))
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, APIKey: "NRAK-test"})
	resp, err := c.Query(context.Background(), "{actor {user {name}}}")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "NRAK-test", gotKey)
	assert.Equal(t, contentTypeGraphQL, gotType)
	assert.Equal(t, "{actor {user {name}}}", gotBody)
	assert.False(t, resp.HasErrors())
	assert.NoError(t, resp.Err())
	assert.Contains(t, string(resp.Data), "checkout")
}

func TestClient_Query_UpstreamErrorsAreNotTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"Invalid API key","path":["actor"]}]}`))
	}))
	defer srv.Close()

	resp, err := New(Options{Endpoint: srv.URL}).Query(context.Background(), "{}")
	require.NoError(t, err)
	require.True(t, resp.HasErrors())
	assert.EqualError(t, resp.Err(), "Invalid API key (path actor)")
}

func TestClient_Query_Non2xxWithGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"forbidden"}]}`))
	}))
	defer srv.Close()

	resp, err := New(Options{Endpoint: srv.URL}).Query(context.Background(), "{}")
	require.NoError(t, err)
	assert.True(t, resp.HasErrors())
}

func TestClient_Query_Non2xxUnparseable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := New(Options{Endpoint: srv.URL}).Query(context.Background(), "{}")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_Query_Non2xxWithoutErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(Options{Endpoint: srv.URL}).Query(context.Background(), "{}")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_Query_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	_, err := New(Options{Endpoint: srv.URL}).Query(context.Background(), "{}")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_Query_ConnectFailure(t *testing.T) {
	_, err := New(Options{Endpoint: "http://127.0.0.1:1"}).Query(context.Background(), "{}")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_Query_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Query(context.Background(), "{}")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultEndpoint, c.endpoint)
	assert.Equal(t, DefaultTimeout, c.http.GetClient().Timeout)
}

func TestResponse_ErrNil(t *testing.T) {
	var r *Response
	assert.False(t, r.HasErrors())
	assert.NoError(t, r.Err())
}
