package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleText(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(body.Messages) == 1 {
			gotPrompt = body.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"bonjour"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewOpenAi("key", "test-model", server.URL+"/v1")
	got, err := client.HandleText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if got != "bonjour" {
		t.Errorf("Expected 'bonjour', got '%s'", got)
	}
	if gotPrompt != "hello" {
		t.Errorf("Expected prompt 'hello', got '%s'", gotPrompt)
	}
}

func TestHandleTextServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOpenAi("key", "test-model", server.URL+"/v1")
	if _, err := client.HandleText(context.Background(), "hello"); err == nil {
		t.Error("Expected error on 500 response, got nil")
	}
}
