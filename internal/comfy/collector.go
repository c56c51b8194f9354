package comfy

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/NicoNav/igsaw-puzzle-app/internal/infra"
)

// Binary frames carry a fixed framing prefix before the image bytes: a
// 4-byte event type and a 4-byte image format marker.
const binaryHeaderSize = 8

// StreamCollectorOptions configures optional collector hooks.
type StreamCollectorOptions struct {
	Logger *infra.Logger
	// OnError receives per-frame processing failures. The stream continues
	// regardless.
	OnError func(error)
}

// StreamCollector is the completion path for workflows whose output node
// streams image bytes over the event channel instead of writing files the
// history endpoint could report. It consumes the channel exclusively: do not
// share its EventChannel with a Tracker.
type StreamCollector struct {
	ch          EventChannel
	captureNode string
	logger      *infra.Logger
	onError     func(error)
}

// NewStreamCollector builds a collector that retains binary frames arriving
// while captureNode is the executing node.
func NewStreamCollector(ch EventChannel, captureNode string, opts StreamCollectorOptions) *StreamCollector {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &StreamCollector{
		ch:          ch,
		captureNode: captureNode,
		logger:      logger,
		onError:     opts.OnError,
	}
}

type frameResult struct {
	frame Frame
	err   error
}

// Collect consumes the channel until the job's completion sentinel arrives,
// returning every captured image payload with its framing header stripped.
// When the channel closes early the images captured so far are returned with
// StateChannelClosed: partial results beat a hung caller. Submission may race
// channel establishment, so frames are matched on job id alone — a job not
// yet known locally is still attributed correctly. When the context is
// cancelled the error is ctx.Err() and the returned state is the last
// non-terminal one observed, not an outcome: callers must branch on the error
// before reading the state.
func (c *StreamCollector) Collect(ctx context.Context, jobID string) ([][]byte, TrackState, error) {
	frames := make(chan frameResult)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			frame, err := c.ch.Read()
			select {
			case frames <- frameResult{frame: frame, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var images [][]byte
	currentNode := ""
	for {
		select {
		case <-ctx.Done():
			_ = c.ch.Close()
			return images, StateListening, ctx.Err()
		case result := <-frames:
			if result.err != nil {
				c.logger.Debug().
					Str("job_id", jobID).
					Int("captured", len(images)).
					Msg("comfy: event channel closed before completion sentinel")
				return images, StateChannelClosed, nil
			}
			switch result.frame.Kind {
			case FrameText:
				data, ok := parseExecuting(result.frame.Data)
				if !ok {
					continue
				}
				if data.Node == nil {
					if data.PromptID == jobID {
						return images, StateCompleted, nil
					}
					currentNode = ""
					continue
				}
				currentNode = *data.Node
			case FrameBinary:
				if currentNode != c.captureNode {
					continue
				}
				payload := result.frame.Data
				if len(payload) < binaryHeaderSize {
					c.reportError(fmt.Errorf("comfy: binary frame shorter than framing header: %d bytes", len(payload)))
					continue
				}
				images = append(images, append([]byte(nil), payload[binaryHeaderSize:]...))
			}
		}
	}
}

func (c *StreamCollector) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
		return
	}
	c.logger.Debug().Err(err).Msg("comfy: dropped malformed binary frame")
}
