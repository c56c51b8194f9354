package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatSendsModelAndDisablesStreaming(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var payload chatRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Model != "llava" {
			t.Fatalf("model = %q", payload.Model)
		}
		if payload.Stream {
			t.Fatalf("stream must be false")
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: "a tabby cat"}})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL, Model: "llava"})
	reply, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "what is this?"}})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if reply.Content != "a tabby cat" {
		t.Fatalf("reply = %q", reply.Content)
	}
}

func TestAnalyzeImageAttachesBase64Payload(t *testing.T) {
	imageData := []byte{0x89, 0x50, 0x4e, 0x47}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload chatRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(payload.Messages) != 1 || len(payload.Messages[0].Images) != 1 {
			t.Fatalf("image attachment missing: %+v", payload.Messages)
		}
		if payload.Messages[0].Images[0] != base64.StdEncoding.EncodeToString(imageData) {
			t.Fatalf("image not base64 encoded")
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: Message{Content: "  a cat on a sofa \n"}})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	description, err := client.AnalyzeImage(context.Background(), "describe the subject", imageData)
	if err != nil {
		t.Fatalf("AnalyzeImage error: %v", err)
	}
	if description != "a cat on a sofa" {
		t.Fatalf("description = %q", description)
	}
}

func TestAnalyzeImageRequiresInputs(t *testing.T) {
	client := NewClient(Options{})
	if _, err := client.AnalyzeImage(context.Background(), "", []byte{1}); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
	if _, err := client.AnalyzeImage(context.Background(), "describe", nil); err == nil {
		t.Fatalf("expected error for empty image")
	}
}

func TestWithModelLeavesOriginalUntouched(t *testing.T) {
	client := NewClient(Options{Model: "llava"})
	swapped := client.WithModel("bakllava")

	if client.Model() != "llava" {
		t.Fatalf("original client mutated: %q", client.Model())
	}
	if swapped.Model() != "bakllava" {
		t.Fatalf("swapped model = %q", swapped.Model())
	}
	if client.WithModel("llava") != client {
		t.Fatalf("same-model swap should return the receiver")
	}
}

func TestListModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(tagsResponse{Models: []Model{
			{Name: "llava:13b", Size: 8_000_000_000},
			{Name: "bakllava", Size: 4_700_000_000},
		}})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels error: %v", err)
	}
	if len(models) != 2 || models[0].Name != "llava:13b" {
		t.Fatalf("unexpected models: %+v", models)
	}
}
