package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfmc/hfmc-go/internal/peer"
)

func testPeer(t *testing.T, ts *httptest.Server) peer.Peer {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	host, portStr, err := splitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return peer.Peer{IP: host, Port: port}
}

func splitHostPort(hostport string) (string, string, error) {
	idx := strings.LastIndex(hostport, ":")
	return hostport[:idx], hostport[idx+1:], nil
}

func TestProbePeerAlive(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	result := ProbePeer(context.Background(), testPeer(t, ts))
	assert.True(t, result.Alive)
	assert.NotZero(t, result.Epoch)
}

func TestProbePeerUnreachable(t *testing.T) {
	target := peer.Peer{IP: "127.0.0.1", Port: 1}
	result := ProbePeer(context.Background(), target)
	assert.False(t, result.Alive)
}

func TestHeadFileReportsExistence(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/acme/widget/resolve/main/config.json" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	p := testPeer(t, ts)
	_, ok := HeadFile(context.Background(), p, "acme/widget", "main", "config.json")
	assert.True(t, ok)

	_, ok = HeadFile(context.Background(), p, "acme/widget", "main", "missing.bin")
	assert.False(t, ok)
}

func TestGetFileEtagStripsQuotes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	val, ok := GetFileEtag(context.Background(), ts.URL, "acme/widget", "main", "config.json")
	require.True(t, ok)
	assert.Equal(t, "abc123", val)
}

func TestGetAlivePeersDecodesWireFormat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"ip":"10.0.0.1","port":9090,"alive":true,"epoch":42}]`))
	}))
	defer ts.Close()

	peers := GetAlivePeers(context.Background(), testPeer(t, ts))
	require.Len(t, peers, 1)
	assert.Equal(t, "10.0.0.1", peers[0].IP)
	assert.True(t, peers[0].Alive)
}
