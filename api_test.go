package conversync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultline/conversync/wire"
)

func TestAPIClientSendsBearerToken(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		json.NewEncoder(w).Encode(wire.PostMessageResponse{ID: "m1"})
	}))
	defer server.Close()

	api := NewAPIClient(Config{APIEndpoint: server.URL, Token: "secret"})
	_, err := api.PostMessage(context.Background(), wire.PostMessageRequest{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestAPIClientErrorCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "conversation not found", http.StatusNotFound)
	}))
	defer server.Close()

	api := NewAPIClient(Config{APIEndpoint: server.URL})
	_, err := api.History(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "conversation not found")
}

func TestAPIClientEscapesPathSegments(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewEncoder(w).Encode(wire.HistoryResponse{})
	}))
	defer server.Close()

	api := NewAPIClient(Config{APIEndpoint: server.URL})
	_, err := api.History(context.Background(), "conv/1")
	require.NoError(t, err)
	assert.Equal(t, "/conversations/conv%2F1/messages", gotPath)
}
