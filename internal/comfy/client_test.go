package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitPrompt(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var payload struct {
			Prompt   Graph  `json:"prompt"`
			ClientID string `json:"client_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.ClientID != "session-1" {
			t.Fatalf("client_id = %q", payload.ClientID)
		}
		if payload.Prompt["1"].Inputs["image"] != "cat.png" {
			t.Fatalf("graph not forwarded: %#v", payload.Prompt)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"prompt_id": "job-1", "number": 3})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	graph := Graph{"1": {Inputs: map[string]any{"image": "cat.png"}, ClassType: "LoadImage"}}
	sub, err := client.SubmitPrompt(context.Background(), graph, "session-1")
	if err != nil {
		t.Fatalf("SubmitPrompt error: %v", err)
	}
	if sub.JobID != "job-1" || sub.QueuePosition != 3 {
		t.Fatalf("unexpected submission: %+v", sub)
	}
}

func TestSubmitPromptPreservesRejectionPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid prompt","node_errors":{"3":{}}}`))
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	_, err := client.SubmitPrompt(context.Background(), Graph{}, "session-1")

	var submissionErr *SubmissionError
	if !errors.As(err, &submissionErr) {
		t.Fatalf("error = %v, want SubmissionError", err)
	}
	if submissionErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", submissionErr.StatusCode)
	}
	if !strings.Contains(submissionErr.Body, "invalid prompt") {
		t.Fatalf("remote payload lost: %q", submissionErr.Body)
	}
}

func TestAwaitOutputsPollsUntilReady(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"job-1": map[string]any{
				"outputs": map[string]any{
					"9": map[string]any{"images": []map[string]string{{"filename": "out.png", "subfolder": "", "type": "output"}}},
				},
			},
		})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL, PollInterval: 10 * time.Millisecond, PollTimeout: 2 * time.Second})
	outputs, err := client.AwaitOutputs(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("AwaitOutputs error: %v", err)
	}
	if len(outputs["9"].Images) != 1 || outputs["9"].Images[0].Filename != "out.png" {
		t.Fatalf("unexpected outputs: %#v", outputs)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 poll attempts, got %d", calls.Load())
	}
}

func TestAwaitOutputsTreatsPollErrorsAsNotReady(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"job-1": map[string]any{
				"outputs": map[string]any{"9": map[string]any{"images": []map[string]string{{"filename": "out.png"}}}},
			},
		})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL, PollInterval: 10 * time.Millisecond, PollTimeout: 2 * time.Second})
	if _, err := client.AwaitOutputs(context.Background(), "job-1"); err != nil {
		t.Fatalf("poll error was fatal: %v", err)
	}
}

func TestAwaitOutputsTimesOut(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL, PollInterval: 10 * time.Millisecond, PollTimeout: 60 * time.Millisecond})
	start := time.Now()
	_, err := client.AwaitOutputs(context.Background(), "job-1")

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want TimeoutError", err)
	}
	if timeoutErr.JobID != "job-1" {
		t.Fatalf("timeout job id = %q", timeoutErr.JobID)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout took %v, expected well under a second", elapsed)
	}
}

func TestUploadImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload/image" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "photo.png" {
			t.Fatalf("filename = %q", header.Filename)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "photo.png", "subfolder": ""})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	result, err := client.UploadImage(context.Background(), "photo.png", strings.NewReader("fake-png-bytes"))
	if err != nil {
		t.Fatalf("UploadImage error: %v", err)
	}
	if result.Name != "photo.png" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestViewURLEscapesArtifactFields(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://example.test"})
	got := client.ViewURL(Artifact{Filename: "a b.png", Subfolder: "pieces/1", Type: "output"})
	want := "http://example.test/view?filename=a+b.png&subfolder=pieces%2F1&type=output"
	if got != want {
		t.Fatalf("ViewURL = %q, want %q", got, want)
	}
}

func TestInterrupt(t *testing.T) {
	var called atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/interrupt" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		called.Store(true)
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	if err := client.Interrupt(context.Background()); err != nil {
		t.Fatalf("Interrupt error: %v", err)
	}
	if !called.Load() {
		t.Fatalf("interrupt endpoint not called")
	}
}
