package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAnswerer_Answer(t *testing.T) {
	var got answerRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(answerResponse{Answer: "the sum is 7"})
	}))
	t.Cleanup(server.Close)

	answerer := NewHTTPAnswerer(server.URL)
	doc := Document{Filename: "sales.csv", Content: []byte("a,b\n3,4\n")}

	answer, err := answerer.Answer(context.Background(), doc, "what is the sum?")
	require.NoError(t, err)
	assert.Equal(t, "the sum is 7", answer)

	assert.Equal(t, "sales.csv", got.Filename)
	assert.Equal(t, "what is the sum?", got.Question)
	content, err := base64.StdEncoding.DecodeString(got.Content)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, content)
}

func TestHTTPAnswerer_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(answerResponse{Error: "unsupported file format"})
	}))
	t.Cleanup(server.Close)

	_, err := NewHTTPAnswerer(server.URL).Answer(context.Background(), Document{}, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file format")
}

func TestHTTPAnswerer_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	_, err := NewHTTPAnswerer(server.URL).Answer(context.Background(), Document{}, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPAnswerer_EmptyAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	_, err := NewHTTPAnswerer(server.URL).Answer(context.Background(), Document{}, "q")
	assert.Error(t, err)
}

func TestHTTPAnswerer_WithTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(answerResponse{Answer: "late"})
	}))
	t.Cleanup(server.Close)

	answerer := NewHTTPAnswerer(server.URL).WithTimeout(20 * time.Millisecond)
	_, err := answerer.Answer(context.Background(), Document{}, "q")
	assert.Error(t, err)
}
