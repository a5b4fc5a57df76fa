package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaLLM_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req ollamaGenerateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("Generate should not request streaming")
		}
		if req.Options.Temperature != 0.2 {
			t.Errorf("expected temperature 0.2, got %v", req.Options.Temperature)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": "Hello there!",
			"done":     true,
		})
	}))
	defer server.Close()

	adapter := NewOllamaLLMAdapter(server.URL, "test-model", WithTemperature(0.2))
	resp, err := adapter.Generate(context.Background(), "Hi")

	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp != "Hello there!" {
		t.Errorf("unexpected response: %s", resp)
	}
}

func TestOllamaLLM_GenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Streaming response - newline delimited JSON
		w.Write([]byte(`{"response":"Hello","done":false}` + "\n"))
		w.Write([]byte(`not json` + "\n"))
		w.Write([]byte(`{"response":" world","done":false}` + "\n"))
		w.Write([]byte(`{"response":"!","done":true}` + "\n"))
	}))
	defer server.Close()

	adapter := NewOllamaLLMAdapter(server.URL, "test")
	ch, err := adapter.GenerateStream(context.Background(), "test")

	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	var sb strings.Builder
	for token := range ch {
		if token.Error != nil {
			t.Fatalf("unexpected stream error: %v", token.Error)
		}
		sb.WriteString(token.Content)
		if token.Done {
			break
		}
	}

	if sb.String() != "Hello world!" {
		t.Errorf("unexpected streamed text %q", sb.String())
	}
}

func TestOllamaLLM_StreamErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model not loaded"}` + "\n"))
	}))
	defer server.Close()

	ch, err := NewOllamaLLMAdapter(server.URL, "test").GenerateStream(context.Background(), "test")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	token := <-ch
	if token.Error == nil || !token.Done {
		t.Errorf("expected terminal error token, got %+v", token)
	}
}

func TestOllamaLLM_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewOllamaLLMAdapter(server.URL, "test")
	_, err := adapter.Generate(context.Background(), "test")

	if err == nil {
		t.Error("should error on 404")
	}
}

func TestOllamaLLM_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "out of memory"})
	}))
	defer server.Close()

	_, err := NewOllamaLLMAdapter(server.URL, "test").Generate(context.Background(), "test")
	if err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("expected Ollama error to surface, got %v", err)
	}
}

func TestOllamaLLM_DefaultValues(t *testing.T) {
	adapter := NewOllamaLLMAdapter("", "")
	if adapter.baseURL != "http://127.0.0.1:11434" {
		t.Error("should default to the local Ollama address")
	}
	if adapter.model != "mistral" {
		t.Error("should default to mistral")
	}
	if adapter.temperature != 0.7 {
		t.Errorf("unexpected default temperature %v", adapter.temperature)
	}
}
