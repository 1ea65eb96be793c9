package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/docent-ai/docent/internal/testutil"
)

// newTestGraphWithFlow wires a Graph and returns the Genkit instance the
// flow must be defined on, so model lookup and flow registration share one
// registry like production setup does.
func newTestGraphWithFlow(t *testing.T, mock *testutil.MockLLM) (*Graph, *genkit.Genkit) {
	t.Helper()
	g := genkit.Init(context.Background())
	mock.RegisterModel(g)

	gr, err := New(Config{
		Genkit:    g,
		Search:    &fakeSearcher{},
		Logger:    testutil.DiscardLogger(),
		ModelName: "mock/docs-model",
	})
	if err != nil {
		t.Fatalf("creating graph: %v", err)
	}
	return gr, g
}

func TestNewFlow_ReturnsSingleton(t *testing.T) {
	ResetFlowForTesting()
	t.Cleanup(ResetFlowForTesting)

	gr, g := newTestGraphWithFlow(t, testutil.NewMockLLM("ok"))

	f1 := NewFlow(g, gr)
	f2 := NewFlow(g, gr)

	if f1 == nil {
		t.Fatal("NewFlow returned nil")
	}
	if f1 != f2 {
		t.Error("NewFlow returned different instances")
	}
}

func TestFlow_StreamsAnswer(t *testing.T) {
	ResetFlowForTesting()
	t.Cleanup(ResetFlowForTesting)

	mock := testutil.NewMockLLM("unused fallback")
	mock.AddResponse("classify the user's latest", `{"type":"general","logic":"greeting"}`)
	mock.AddResponse("does not need the documentation index", "Hello! Ask me about terrain.")

	gr, g := newTestGraphWithFlow(t, mock)
	f := NewFlow(g, gr)

	var chunks []string
	var out Output
	done := false
	for value, err := range f.Stream(context.Background(), question("hi there")) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		if value.Done {
			out = value.Output
			done = true
			continue
		}
		chunks = append(chunks, value.Stream.Text)
	}

	if !done {
		t.Fatal("stream never produced the final output")
	}
	if out.Answer != "Hello! Ask me about terrain." {
		t.Errorf("answer = %q", out.Answer)
	}
	if out.Router.Type != RouteGeneral {
		t.Errorf("router = %+v", out.Router)
	}
	if len(chunks) < 2 {
		t.Errorf("got %d chunks, want streaming in pieces", len(chunks))
	}
	if joined := strings.Join(chunks, ""); joined != out.Answer {
		t.Errorf("joined chunks %q != answer %q", joined, out.Answer)
	}
}

func TestFlow_RunWithoutStreaming(t *testing.T) {
	ResetFlowForTesting()
	t.Cleanup(ResetFlowForTesting)

	mock := testutil.NewMockLLM("unused fallback")
	mock.AddResponse("classify the user's latest", `{"type":"general","logic":"greeting"}`)
	mock.AddResponse("does not need the documentation index", "Hi.")

	gr, g := newTestGraphWithFlow(t, mock)
	f := NewFlow(g, gr)

	out, err := f.Run(context.Background(), question("hello"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Answer != "Hi." {
		t.Errorf("answer = %q", out.Answer)
	}
}

func TestFlow_SurfacesRunErrors(t *testing.T) {
	ResetFlowForTesting()
	t.Cleanup(ResetFlowForTesting)

	gr, g := newTestGraphWithFlow(t, testutil.NewMockLLM("ok"))
	f := NewFlow(g, gr)

	_, err := f.Run(context.Background(), Input{})
	if err == nil {
		t.Fatal("run with an empty conversation succeeded")
	}
	if !strings.Contains(err.Error(), ErrEmptyConversation.Error()) {
		t.Errorf("err = %v, want the pipeline error surfaced", err)
	}
}

func TestSentinelWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("%w: %w", ErrExecutionFailed, ErrEmptyConversation)
	if !errors.Is(wrapped, ErrExecutionFailed) {
		t.Error("ErrExecutionFailed lost in wrapping")
	}
	if !errors.Is(wrapped, ErrEmptyConversation) {
		t.Error("ErrEmptyConversation lost in wrapping")
	}
}
