package puzzle

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/NicoNav/igsaw-puzzle-app/internal/comfy"
	"github.com/NicoNav/igsaw-puzzle-app/internal/domain"
	"github.com/NicoNav/igsaw-puzzle-app/internal/infra"
)

// Options configures a batch generator.
type Options struct {
	Client   *comfy.Client
	Template comfy.Graph
	Bindings comfy.Bindings
	// Dialer opens the execution event channel. When nil (or when dialing
	// fails) the generator falls back to history polling alone.
	Dialer comfy.Dialer
	// CaptureNode names the workflow node that streams image bytes over the
	// event channel. Required for GenerateStream, unused by GenerateAll.
	CaptureNode    string
	NegativePrompt string
	Steps          int
	Logger         *infra.Logger
	// OnProgress is invoked before each piece's submission.
	OnProgress func(domain.BatchProgress)
	// OnPiece observes piece state transitions as the batch runs: once when a
	// piece starts generating and once when it reaches a terminal status.
	OnPiece func(index int, piece domain.Piece)
}

// Generator runs multi-piece generation batches against the graph-execution
// service. One generator owns one session (correlation id) for its whole
// lifetime.
type Generator struct {
	client         *comfy.Client
	template       comfy.Graph
	bindings       comfy.Bindings
	dialer         comfy.Dialer
	captureNode    string
	negativePrompt string
	steps          int
	logger         *infra.Logger
	onProgress     func(domain.BatchProgress)
	onPiece        func(index int, piece domain.Piece)
	session        Session
}

// NewGenerator wires a generator with a fresh session.
func NewGenerator(opts Options) (*Generator, error) {
	if opts.Client == nil {
		return nil, errors.New("puzzle: comfy client is required")
	}
	if len(opts.Template) == 0 {
		return nil, errors.New("puzzle: workflow template is required")
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Generator{
		client:         opts.Client,
		template:       opts.Template,
		bindings:       opts.Bindings,
		dialer:         opts.Dialer,
		captureNode:    opts.CaptureNode,
		negativePrompt: opts.NegativePrompt,
		steps:          opts.Steps,
		logger:         logger,
		onProgress:     opts.OnProgress,
		onPiece:        opts.OnPiece,
		session:        NewSession(),
	}, nil
}

// Session returns the generator's correlation identity.
func (g *Generator) Session() Session {
	return g.session
}

// GenerateAll drives every piece through submit, track and materialize,
// strictly in order and one at a time: the remote queue runs a single worker,
// so concurrent submissions would only sit in its queue anyway. A piece's
// failure is recorded on the piece and never aborts the batch; every piece
// ends complete or error. The input slice is mutated in place and returned.
func (g *Generator) GenerateAll(ctx context.Context, pieces []domain.Piece, imageFilename string) ([]domain.Piece, error) {
	if len(pieces) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	tracker := g.openTracker(ctx)
	if tracker != nil {
		defer tracker.Close()
	}

	total := len(pieces)
	for i := range pieces {
		piece := &pieces[i]
		if g.onProgress != nil {
			g.onProgress(domain.BatchProgress{Current: i + 1, Total: total})
		}
		piece.Status = domain.PieceStatusGenerating
		g.notifyPiece(i, *piece)

		if err := g.generatePiece(ctx, tracker, piece, imageFilename); err != nil {
			if ctx.Err() != nil {
				markPieceError(piece, err)
				g.notifyPiece(i, *piece)
				return pieces, ctx.Err()
			}
			g.logger.Warn().
				Err(err).
				Int("piece_id", piece.ID).
				Str("job_id", piece.JobID).
				Msg("puzzle: piece generation failed")
			markPieceError(piece, err)
			g.notifyPiece(i, *piece)
			continue
		}
		g.logger.Info().
			Int("piece_id", piece.ID).
			Str("job_id", piece.JobID).
			Msg("puzzle: piece complete")
		g.notifyPiece(i, *piece)
	}
	return pieces, nil
}

func (g *Generator) generatePiece(ctx context.Context, tracker *comfy.Tracker, piece *domain.Piece, imageFilename string) error {
	seed := deterministicSeed(g.session.ID(), piece.ID, piece.SubjectID, piece.Prompt)
	params := g.bindings.Params(imageFilename, piece.Prompt, g.negativePrompt, seed, g.steps)
	graph := comfy.ApplyParameters(g.template, params)

	submission, err := g.client.SubmitPrompt(ctx, graph, g.session.ID())
	if err != nil {
		return err
	}
	piece.JobID = submission.JobID

	state := comfy.StateCompleted
	if tracker != nil {
		state, err = tracker.Await(ctx, submission.JobID, func(nodeID string) {
			g.logger.Debug().
				Str("job_id", submission.JobID).
				Str("node_id", nodeID).
				Msg("puzzle: node executing")
		})
		if err != nil {
			return err
		}
	}

	// The history endpoint is consulted even after a confirmed completion:
	// it is the only source of artifact descriptors. After an ambiguous
	// channel close it doubles as the corroboration step.
	outputs, err := g.client.AwaitOutputs(ctx, submission.JobID)
	if err != nil {
		if state == comfy.StateChannelClosed {
			return fmt.Errorf("%w: %w", domain.ErrAmbiguousCompletion, err)
		}
		return err
	}

	artifacts := comfy.ImageArtifacts(outputs)
	if len(artifacts) == 0 {
		return domain.ErrNoArtifacts
	}
	piece.ImageURL = g.client.ViewURL(artifacts[0])
	piece.Status = domain.PieceStatusComplete
	piece.Error = ""
	return nil
}

// GenerateStream runs a single piece through a workflow whose capture node
// streams the rendered image over the event channel instead of writing files
// the history endpoint could report. The channel is dialed before submission
// so no frame is missed, and it is dedicated to this job: never the tracker's
// shared channel. Returns every captured image payload in arrival order.
func (g *Generator) GenerateStream(ctx context.Context, piece domain.Piece, imageFilename string) ([][]byte, error) {
	if g.dialer == nil {
		return nil, errors.New("puzzle: event channel dialer is required for streaming generation")
	}
	if g.captureNode == "" {
		return nil, errors.New("puzzle: capture node is required for streaming generation")
	}

	ch, err := g.dialer.Dial(ctx, g.session.ID())
	if err != nil {
		return nil, fmt.Errorf("puzzle: open event channel: %w", err)
	}
	defer func() { _ = ch.Close() }()
	collector := comfy.NewStreamCollector(ch, g.captureNode, comfy.StreamCollectorOptions{Logger: g.logger})

	seed := deterministicSeed(g.session.ID(), piece.ID, piece.SubjectID, piece.Prompt)
	params := g.bindings.Params(imageFilename, piece.Prompt, g.negativePrompt, seed, g.steps)
	graph := comfy.ApplyParameters(g.template, params)

	submission, err := g.client.SubmitPrompt(ctx, graph, g.session.ID())
	if err != nil {
		return nil, err
	}

	images, state, err := collector.Collect(ctx, submission.JobID)
	if err != nil {
		return nil, err
	}
	if state == comfy.StateChannelClosed {
		if len(images) == 0 {
			return nil, domain.ErrAmbiguousCompletion
		}
		g.logger.Warn().
			Str("job_id", submission.JobID).
			Int("captured", len(images)).
			Msg("puzzle: returning partial stream after channel close")
		return images, nil
	}
	if len(images) == 0 {
		return nil, domain.ErrNoArtifacts
	}
	return images, nil
}

func (g *Generator) openTracker(ctx context.Context) *comfy.Tracker {
	if g.dialer == nil {
		return nil
	}
	ch, err := g.dialer.Dial(ctx, g.session.ID())
	if err != nil {
		g.logger.Warn().Err(err).Msg("puzzle: event channel unavailable, relying on history polling")
		return nil
	}
	return comfy.NewTracker(ch, g.logger)
}

func (g *Generator) notifyPiece(index int, piece domain.Piece) {
	if g.onPiece != nil {
		g.onPiece(index, piece)
	}
}

func markPieceError(piece *domain.Piece, err error) {
	piece.Status = domain.PieceStatusError
	piece.Error = pieceErrorMessage(err)
}

func pieceErrorMessage(err error) string {
	if errors.Is(err, domain.ErrNoArtifacts) {
		return "No image generated"
	}
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return "generation failed"
	}
	return err.Error()
}

func deterministicSeed(values ...any) int {
	var parts []string
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	n := binary.BigEndian.Uint32(sum[:4]) % 2147483647
	if n == 0 {
		n = 1
	}
	return int(n)
}
