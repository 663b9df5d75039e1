package fetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/ctxbridge/internal/messenger"
	"github.com/vk/ctxbridge/internal/request"
)

func setup(t *testing.T, mod *Module) *messenger.Messenger {
	t.Helper()
	client := request.NewClient()
	t.Cleanup(func() { client.Close() })
	mod.Client = client
	r := messenger.NewRouter()
	messenger.RegisterAll(r, mod)
	return messenger.New(messenger.NewLoopback(r))
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"method":%q,"type":%q}`, r.Method, r.Header.Get("Content-Type"))
	})
	mux.HandleFunc("/bytes", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte{0x00, 0xff})
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_JSON(t *testing.T) {
	srv := newServer(t)
	m := setup(t, &Module{AllowLocal: true})

	data, err := m.Send(context.Background(), messenger.Message{Cmd: "Fetch", Data: Input{
		URL:          srv.URL + "/json",
		Method:       "post",
		Body:         map[string]any{"a": 1},
		ResponseType: "json",
	}})

	require.NoError(t, err)
	out := data.(map[string]any)
	assert.Equal(t, srv.URL+"/json", out["url"])
	assert.Equal(t, 200.0, out["status"])
	assert.Equal(t, map[string]any{"method": "POST", "type": "application/json"}, out["data"])
}

func TestFetch_URLShorthandAndBinary(t *testing.T) {
	srv := newServer(t)
	m := setup(t, &Module{AllowLocal: true})

	data, err := m.Send(context.Background(), messenger.Message{Cmd: "Fetch", Data: map[string]any{
		"url":          srv.URL + "/bytes",
		"responseType": "blob",
	}})
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x00, 0xff}), data.(map[string]any)["data"])
	assert.Equal(t, EncodingBase64, data.(map[string]any)["encoding"])

	data, err = m.Send(context.Background(), messenger.Message{Cmd: "Fetch", Data: srv.URL + "/json"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(data.(map[string]any)["data"].(string), "{"))
}

func TestFetch_BinaryEncodedBeforeTransport(t *testing.T) {
	srv := newServer(t)
	client := request.NewClient()
	t.Cleanup(func() { client.Close() })
	mod := &Module{Client: client, AllowLocal: true}

	out, err := mod.fetch(context.Background(), map[string]any{
		"url":          srv.URL + "/bytes",
		"responseType": "arraybuffer",
	})
	require.NoError(t, err)
	got := out.(map[string]any)
	assert.Equal(t, "AP8=", got["data"])
	assert.Equal(t, EncodingBase64, got["encoding"])
}

func TestFetch_HTTPFailureCarriesResponse(t *testing.T) {
	srv := newServer(t)
	m := setup(t, &Module{AllowLocal: true})

	_, err := m.Send(context.Background(), messenger.Message{Cmd: "Fetch", Data: Input{URL: srv.URL + "/missing"}})

	var remote *messenger.RemoteError
	require.ErrorAs(t, err, &remote)
	value := remote.Value.(map[string]any)
	assert.Equal(t, 404.0, value["status"])
	assert.Equal(t, "gone\n", value["data"])
	assert.Contains(t, value["message"], "404")
}

func TestFetch_TimeoutIsStatusFailed(t *testing.T) {
	srv := newServer(t)
	m := setup(t, &Module{AllowLocal: true, Timeout: 50 * time.Millisecond})

	_, err := m.Send(context.Background(), messenger.Message{Cmd: "Fetch", Data: Input{URL: srv.URL + "/slow"}})

	var remote *messenger.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, float64(request.StatusFailed), remote.Value.(map[string]any)["status"])
}

func TestFetch_Validation(t *testing.T) {
	m := setup(t, &Module{})
	tests := []struct {
		name    string
		data    any
		wantErr string
	}{
		{name: "no url", data: Input{}, wantErr: "url is required"},
		{name: "local url", data: Input{URL: "http://localhost:8080/x"}, wantErr: "not allowed"},
		{name: "file url", data: "file:///etc/hosts", wantErr: "not allowed"},
		{name: "bad type", data: Input{URL: "https://example.com", ResponseType: "xml"}, wantErr: "unknown response type"},
		{name: "bad timeout", data: Input{URL: "https://example.com", Timeout: "soon"}, wantErr: "invalid timeout"},
		{name: "not an object", data: 5, wantErr: "must be a URL or an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Send(context.Background(), messenger.Message{Cmd: "Fetch", Data: tt.data})

			var remote *messenger.RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
