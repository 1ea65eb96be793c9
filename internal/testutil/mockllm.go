package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM returns canned responses keyed by substrings of the request text,
// system prompt included. Registered patterns are checked in order; the
// first match wins, otherwise the fallback is returned. Matching on the
// system prompt lets tests distinguish pipeline stages that resend the same
// conversation under different instructions. Safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []MockCall
}

type mockRule struct {
	pattern  string
	response string
}

// MockCall records one generation request seen by the mock.
type MockCall struct {
	UserMessage string
	Response    string
}

// NewMockLLM creates a mock model that answers with fallback when no
// registered pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse maps a case-insensitive substring of the request text to a
// response. For flows that parse structured output, register the JSON text
// the schema expects.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{strings.ToLower(pattern), response})
}

// Calls returns a copy of every recorded generation request.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Reset clears recorded calls but keeps registered responses.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// RegisterModel registers the mock with Genkit as "mock/docs-model".
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return m.RegisterModelAs(g, "mock/docs-model")
}

// RegisterModelAs registers the mock under a provider-qualified name. Tests
// covering model selection register several mocks side by side.
func (m *MockLLM) RegisterModelAs(g *genkit.Genkit, name string) ai.Model {
	return genkit.DefineModel(g, name, &ai.ModelOptions{
		Label: name,
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	reply := m.reply(req)

	// Stream in two pieces so consumers that accumulate deltas get
	// exercised with more than one chunk.
	if cb != nil {
		runes := []rune(reply)
		mid := len(runes) / 2
		for _, part := range []string{string(runes[:mid]), string(runes[mid:])} {
			if part == "" {
				continue
			}
			chunk := &ai.ModelResponseChunk{Content: []*ai.Part{ai.NewTextPart(part)}}
			if err := cb(ctx, chunk); err != nil {
				return nil, err
			}
		}
	}

	msg := &ai.Message{Role: ai.RoleModel, Content: []*ai.Part{ai.NewTextPart(reply)}}
	return &ai.ModelResponse{Request: req, Message: msg}, nil
}

// reply picks the response text for a request and records the call.
func (m *MockLLM) reply(req *ai.ModelRequest) string {
	var b strings.Builder
	for _, msg := range req.Messages {
		b.WriteString(msg.Text())
		b.WriteByte('\n')
	}
	haystack := strings.ToLower(b.String())

	m.mu.Lock()
	defer m.mu.Unlock()
	reply := m.fallback
	for _, r := range m.rules {
		if strings.Contains(haystack, r.pattern) {
			reply = r.response
			break
		}
	}
	m.calls = append(m.calls, MockCall{UserMessage: lastUserText(req.Messages), Response: reply})
	return reply
}

// lastUserText finds the newest user turn, which MockCall reports as the
// question the model was asked.
func lastUserText(msgs []*ai.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == ai.RoleUser {
			return msgs[i].Text()
		}
	}
	return ""
}

// MockEmbedder produces deterministic vectors: the same text always embeds
// to the same unit vector, and distinct texts diverge. Explicit vectors can
// be registered to control similarity precisely. Safe for concurrent use.
type MockEmbedder struct {
	mu     sync.Mutex
	pinned map[string][]float32
	dim    int
}

// NewMockEmbedder creates a mock embedder emitting vectors of dim width.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{pinned: make(map[string][]float32), dim: dim}
}

// SetVector pins the vector returned for exactly this content.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned[content] = vec
}

// RegisterEmbedder registers the mock with Genkit as "mock/docs-embedder".
func (e *MockEmbedder) RegisterEmbedder(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/docs-embedder", &ai.EmbedderOptions{
		Label:      "Mock Docs Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	out := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		out[i] = &ai.Embedding{Embedding: e.vectorFor(documentText(doc))}
	}
	return &ai.EmbedResponse{Embeddings: out}, nil
}

func (e *MockEmbedder) vectorFor(content string) []float32 {
	e.mu.Lock()
	v, ok := e.pinned[content]
	e.mu.Unlock()
	if !ok {
		v = deterministicVector(content, e.dim)
	}
	return v
}

func documentText(doc *ai.Document) string {
	texts := make([]string, 0, len(doc.Content))
	for _, part := range doc.Content {
		if part.Kind == ai.PartText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "")
}

// deterministicVector hashes content block by block into floats in [-1, 1],
// then normalizes, so cosine distances are well defined.
func deterministicVector(content string, dim int) []float32 {
	vec := make([]float32, dim)
	var block [32]byte
	for i := range vec {
		if i%8 == 0 {
			block = sha256.Sum256(fmt.Appendf(nil, "%s#%d", content, i/8))
		}
		off := (i % 8) * 4
		u := binary.LittleEndian.Uint32(block[off : off+4])
		vec[i] = float32(u)/float32(math.MaxUint32)*2 - 1
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / n)
	}
}
