package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docent-ai/docent/internal/timeline"
)

// Input is the request payload for the answering flow: the full
// conversation so far, ending with the user's latest question. Model, when
// set, overrides the configured model for the whole run. A preset router
// skips classification.
type Input struct {
	Messages []timeline.RawMessage `json:"messages"`
	Model    string                `json:"model,omitempty"`
	Router   *timeline.Router      `json:"router,omitempty"`
}

// Output is the completed run state: the answer plus the routing decision
// and retrieved documents that thread snapshots persist alongside it.
type Output struct {
	Answer    string              `json:"answer"`
	Router    timeline.Router     `json:"router"`
	Documents []timeline.Document `json:"documents,omitempty"`
}

// StreamChunk is one streamed piece of the final answer.
type StreamChunk struct {
	Text string `json:"text"`
}

// FlowName is the registered name of the answering flow in Genkit.
const FlowName = "docent/chat"

// Flow is the Genkit streaming flow type for the answering pipeline.
type Flow = core.Flow[Input, Output, StreamChunk]

// Flow singleton. genkit.DefineStreamingFlow panics on re-registration, so
// the flow is defined once per process.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the answering flow singleton, defining it on first call.
// Later calls return the existing flow and ignore the arguments.
func NewFlow(g *genkit.Genkit, gr *Graph) *Flow {
	flowOnce.Do(func() {
		flow = gr.DefineFlow(g)
	})
	return flow
}

// ResetFlowForTesting clears the flow singleton so tests can define the
// flow against a fresh Genkit instance. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

// DefineFlow registers the answering pipeline as a Genkit streaming flow.
// Use NewFlow instead of calling this directly; defining the same flow
// name twice on one registry panics.
func (gr *Graph) DefineFlow(g *genkit.Genkit) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, input Input, streamCb func(context.Context, StreamChunk) error) (Output, error) {
			var callback StreamCallback
			if streamCb != nil {
				callback = func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
					if chunk == nil {
						return nil
					}
					for _, part := range chunk.Content {
						if part.Text == "" {
							continue
						}
						if err := streamCb(ctx, StreamChunk{Text: part.Text}); err != nil {
							return err
						}
					}
					return nil
				}
			}

			out, err := gr.Run(ctx, input, callback)
			if err != nil {
				return Output{}, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
			}
			return out, nil
		},
	)
}
