package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSClient_Send(t *testing.T) {
	var gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte("<ebicsResponse/>"))
	}))
	defer srv.Close()

	client := NewHTTPSClient(nil)
	resp, err := client.Send(context.Background(), srv.URL, []byte("<ebicsRequest/>"))
	require.NoError(t, err)

	assert.Equal(t, "<ebicsResponse/>", string(resp))
	assert.Equal(t, "text/xml; charset=utf-8", gotContentType)
	assert.Equal(t, "<ebicsRequest/>", gotBody)
}

func TestHTTPSClient_SendNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bank says no", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPSClient(nil)
	_, err := client.Send(context.Background(), srv.URL, []byte("<ebicsRequest/>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSClient_SendConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewHTTPSClient(nil)
	_, err := client.Send(context.Background(), srv.URL, []byte("<ebicsRequest/>"))
	assert.Error(t, err)
}

func TestHTTPSClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewHTTPSClient(nil)
	_, err := client.Send(ctx, srv.URL, []byte("<ebicsRequest/>"))
	assert.Error(t, err)
}
