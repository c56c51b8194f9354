package comfy

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func binaryFrame(payload []byte) []byte {
	header := []byte{0, 0, 0, 1, 0, 0, 0, 2}
	return append(append([]byte(nil), header...), payload...)
}

func collectAsync(collector *StreamCollector, jobID string) chan struct {
	images [][]byte
	state  TrackState
	err    error
} {
	done := make(chan struct {
		images [][]byte
		state  TrackState
		err    error
	}, 1)
	go func() {
		images, state, err := collector.Collect(context.Background(), jobID)
		done <- struct {
			images [][]byte
			state  TrackState
			err    error
		}{images, state, err}
	}()
	return done
}

func TestCollectorCapturesOnlyDuringCaptureNode(t *testing.T) {
	ch := newFakeChannel()
	collector := NewStreamCollector(ch, "save_node", StreamCollectorOptions{})
	done := collectAsync(collector, "job_A")

	ch.sendExecuting(t, "job_A", strPtr("other_node"))
	ch.sendBinary(binaryFrame([]byte("discarded")))
	ch.sendExecuting(t, "job_A", strPtr("save_node"))
	ch.sendBinary(binaryFrame([]byte("kept-1")))
	ch.sendBinary(binaryFrame([]byte("kept-2")))
	ch.sendExecuting(t, "job_A", strPtr("other_node"))
	ch.sendBinary(binaryFrame([]byte("discarded-too")))
	ch.sendExecuting(t, "job_A", nil)

	select {
	case result := <-done:
		if result.err != nil {
			t.Fatalf("Collect error: %v", result.err)
		}
		if result.state != StateCompleted {
			t.Fatalf("state = %v, want StateCompleted", result.state)
		}
		if len(result.images) != 2 {
			t.Fatalf("captured %d images, want 2", len(result.images))
		}
		if !bytes.Equal(result.images[0], []byte("kept-1")) || !bytes.Equal(result.images[1], []byte("kept-2")) {
			t.Fatalf("captured payloads mismatch: %q %q", result.images[0], result.images[1])
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("collector never resolved")
	}
}

func TestCollectorStripsFramingHeader(t *testing.T) {
	ch := newFakeChannel()
	collector := NewStreamCollector(ch, "save_node", StreamCollectorOptions{})
	done := collectAsync(collector, "job_A")

	payload := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a}
	ch.sendExecuting(t, "job_A", strPtr("save_node"))
	ch.sendBinary(binaryFrame(payload))
	ch.sendExecuting(t, "job_A", nil)

	select {
	case result := <-done:
		if len(result.images) != 1 || !bytes.Equal(result.images[0], payload) {
			t.Fatalf("header not stripped: %v", result.images)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("collector never resolved")
	}
}

func TestCollectorReturnsPartialOnChannelClose(t *testing.T) {
	ch := newFakeChannel()
	collector := NewStreamCollector(ch, "save_node", StreamCollectorOptions{})
	done := collectAsync(collector, "job_A")

	ch.sendExecuting(t, "job_A", strPtr("save_node"))
	ch.sendBinary(binaryFrame([]byte("partial")))
	ch.Close()

	select {
	case result := <-done:
		if result.err != nil {
			t.Fatalf("Collect error: %v", result.err)
		}
		if result.state != StateChannelClosed {
			t.Fatalf("state = %v, want StateChannelClosed", result.state)
		}
		if len(result.images) != 1 || !bytes.Equal(result.images[0], []byte("partial")) {
			t.Fatalf("partial capture mismatch: %v", result.images)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("collector hung on channel close")
	}
}

func TestCollectorForwardsFrameErrorsWithoutAborting(t *testing.T) {
	ch := newFakeChannel()
	frameErrors := make(chan error, 1)
	collector := NewStreamCollector(ch, "save_node", StreamCollectorOptions{
		OnError: func(err error) { frameErrors <- err },
	})
	done := collectAsync(collector, "job_A")

	ch.sendExecuting(t, "job_A", strPtr("save_node"))
	ch.sendBinary([]byte{1, 2, 3}) // shorter than the framing header
	ch.sendBinary(binaryFrame([]byte("good")))
	ch.sendExecuting(t, "job_A", nil)

	select {
	case result := <-done:
		if result.state != StateCompleted {
			t.Fatalf("state = %v, want StateCompleted", result.state)
		}
		if len(result.images) != 1 || !bytes.Equal(result.images[0], []byte("good")) {
			t.Fatalf("stream aborted after frame error: %v", result.images)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("collector never resolved")
	}

	select {
	case err := <-frameErrors:
		if err == nil {
			t.Fatalf("expected non-nil frame error")
		}
	default:
		t.Fatalf("short frame error was not forwarded")
	}
}

func TestCollectorCancellationIsNotATerminalOutcome(t *testing.T) {
	ch := newFakeChannel()
	collector := NewStreamCollector(ch, "save_node", StreamCollectorOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct {
		images [][]byte
		state  TrackState
		err    error
	}, 1)
	go func() {
		images, state, err := collector.Collect(ctx, "job_A")
		done <- struct {
			images [][]byte
			state  TrackState
			err    error
		}{images, state, err}
	}()

	ch.sendExecuting(t, "job_A", strPtr("save_node"))
	ch.sendBinary(binaryFrame([]byte("partial")))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		if result.err != context.Canceled {
			t.Fatalf("Collect error = %v, want context.Canceled", result.err)
		}
		if result.state == StateCompleted || result.state == StateChannelClosed {
			t.Fatalf("cancellation reported terminal state %v", result.state)
		}
		if len(result.images) != 1 || !bytes.Equal(result.images[0], []byte("partial")) {
			t.Fatalf("frames captured before cancellation lost: %v", result.images)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("collector ignored context cancellation")
	}
}

func TestCollectorIgnoresOtherJobsSentinel(t *testing.T) {
	ch := newFakeChannel()
	collector := NewStreamCollector(ch, "save_node", StreamCollectorOptions{})
	done := collectAsync(collector, "job_A")

	ch.sendExecuting(t, "job_B", nil)
	ch.sendExecuting(t, "job_A", strPtr("save_node"))
	ch.sendBinary(binaryFrame([]byte("mine")))
	ch.sendExecuting(t, "job_A", nil)

	select {
	case result := <-done:
		if result.state != StateCompleted {
			t.Fatalf("state = %v, want StateCompleted", result.state)
		}
		if len(result.images) != 1 {
			t.Fatalf("captured %d images, want 1", len(result.images))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("collector resolved on the wrong job or hung")
	}
}
