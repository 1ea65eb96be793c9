// Package graph implements the answering pipeline behind every chat
// request: classify the question, plan documentation research, run the
// searches, then generate a cited answer from what was found.
//
// Routing decides between three paths. "docs" runs the full research loop
// against the knowledge store, "general" answers directly, and "more-info"
// asks the user a clarifying question. Only the answer stage streams.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/timeline"
)

// Routing categories the classifier may choose.
const (
	RouteDocs     = "docs"
	RouteGeneral  = "general"
	RouteMoreInfo = "more-info"
)

const (
	// maxPlanSteps caps the research plan regardless of what the model
	// proposes.
	maxPlanSteps = 5

	// maxQueriesPerStep caps the search queries generated for one step.
	maxQueriesPerStep = 5

	// maxResearchDocuments stops the research loop once enough distinct
	// documents have been collected for the response prompt.
	maxResearchDocuments = 24

	// fallbackAnswer is returned when the model produces no text.
	fallbackAnswer = "I couldn't put together an answer for that. Please try rephrasing the question."
)

// Sentinel errors for pipeline runs.
var (
	// ErrEmptyConversation indicates the request carried no user message.
	ErrEmptyConversation = errors.New("conversation has no user message")

	// ErrExecutionFailed indicates the pipeline failed mid-run.
	ErrExecutionFailed = errors.New("execution failed")
)

// StreamCallback receives each model chunk of the final answer as it is
// generated. Return an error to abort the stream.
type StreamCallback func(ctx context.Context, chunk *ai.ModelResponseChunk) error

// Searcher retrieves documentation chunks for a query. *knowledge.Store
// satisfies it; tests substitute fixed results.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Document, error)
}

var _ Searcher = (*knowledge.Store)(nil)

// Structured outputs the model stages parse their replies into.
type routeDecision struct {
	Type  string `json:"type"`
	Logic string `json:"logic"`
}

type researchPlan struct {
	Steps []string `json:"steps"`
}

type searchQueries struct {
	Queries []string `json:"queries"`
}

// Config carries the pipeline's dependencies.
type Config struct {
	Genkit *genkit.Genkit
	Search Searcher
	Logger *slog.Logger

	// ModelName is the provider-qualified model for every stage, e.g.
	// "googleai/gemini-2.5-flash".
	ModelName string

	// RetryConfig tunes model call retries. Zero value uses defaults.
	RetryConfig RetryConfig

	// RateLimiter throttles model calls across all stages. Nil uses the
	// default limiter.
	RateLimiter *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Search == nil {
		return errors.New("searcher is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Graph orchestrates one answering run per call. All configuration is
// captured at construction, so a single instance serves concurrent
// requests.
type Graph struct {
	g           *genkit.Genkit
	search      Searcher
	logger      *slog.Logger
	modelName   string
	retryConfig RetryConfig
	rateLimiter *rate.Limiter
}

// New creates a Graph from cfg.
func New(cfg Config) (*Graph, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		// 10 requests per second steady state with bursts of 30 stays
		// under typical provider quotas.
		limiter = rate.NewLimiter(10, 30)
	}

	return &Graph{
		g:           cfg.Genkit,
		search:      cfg.Search,
		logger:      cfg.Logger,
		modelName:   cfg.ModelName,
		retryConfig: retryConfig,
		rateLimiter: limiter,
	}, nil
}

// Run executes the pipeline for one conversation. The message log must end
// with (or at least contain) a user question. When callback is non-nil the
// final answer streams through it; intermediate stages never stream. A
// non-empty input.Model overrides the configured model for every stage of
// this run.
//
// The returned Output always carries the routing decision. Documents are
// only present on the docs route.
func (gr *Graph) Run(ctx context.Context, input Input, callback StreamCallback) (Output, error) {
	if !hasUserMessage(input.Messages) {
		return Output{}, ErrEmptyConversation
	}
	gr = gr.withModel(input.Model)
	messages := conversationMessages(input.Messages)

	router, err := gr.route(ctx, input, messages)
	if err != nil {
		return Output{}, err
	}

	out := Output{Router: router}
	switch router.Type {
	case RouteMoreInfo:
		out.Answer, err = gr.answer(ctx, messages, fmt.Sprintf(moreInfoSystemPrompt, router.Logic), callback)
	case RouteGeneral:
		out.Answer, err = gr.answer(ctx, messages, fmt.Sprintf(generalSystemPrompt, router.Logic), callback)
	case RouteDocs:
		var docs []knowledge.Document
		if docs, err = gr.research(ctx, messages); err != nil {
			break
		}
		out.Documents = documentRefs(docs)
		system := fmt.Sprintf(responseSystemPrompt, router.Logic, formatDocs(docs))
		out.Answer, err = gr.answer(ctx, messages, system, callback)
	default:
		err = fmt.Errorf("unknown route %q", router.Type)
	}
	if err != nil {
		return Output{}, err
	}
	return out, nil
}

// withModel returns a copy of the graph pinned to model, or the receiver
// itself when model is empty or already selected. The copy shares the
// genkit registry, searcher, and rate limiter, so the global model-call
// throttle still applies.
func (gr *Graph) withModel(model string) *Graph {
	if model == "" || model == gr.modelName {
		return gr
	}
	pinned := *gr
	pinned.modelName = model
	return &pinned
}

// route returns the classification for the conversation. A caller-supplied
// decision with non-empty logic skips the model call; replayed runs and
// tests use this.
func (gr *Graph) route(ctx context.Context, input Input, messages []*ai.Message) (timeline.Router, error) {
	if input.Router != nil && input.Router.Logic != "" {
		return *input.Router, nil
	}

	resp, err := gr.generate(ctx,
		ai.WithSystem(routerSystemPrompt),
		ai.WithMessages(messages...),
		ai.WithOutputType(routeDecision{}),
	)
	if err != nil {
		return timeline.Router{}, fmt.Errorf("routing question: %w", err)
	}
	var decision routeDecision
	if err := resp.Output(&decision); err != nil {
		return timeline.Router{}, fmt.Errorf("parsing route decision: %w", err)
	}

	gr.logger.Debug("question routed", "type", decision.Type, "logic", decision.Logic)
	return timeline.Router{Type: decision.Type, Logic: decision.Logic}, nil
}

// research plans the steps for the conversation's question and collects
// distinct documents for each step in order.
func (gr *Graph) research(ctx context.Context, messages []*ai.Message) ([]knowledge.Document, error) {
	steps, err := gr.planResearch(ctx, messages)
	if err != nil {
		return nil, err
	}
	gr.logger.Debug("research planned", "steps", len(steps))

	var docs []knowledge.Document
	seen := make(map[uuid.UUID]bool)
	for _, step := range steps {
		if len(docs) >= maxResearchDocuments {
			break
		}
		found, err := gr.researchStep(ctx, step, seen)
		if err != nil {
			return nil, err
		}
		docs = append(docs, found...)
	}
	return docs, nil
}

func (gr *Graph) planResearch(ctx context.Context, messages []*ai.Message) ([]string, error) {
	resp, err := gr.generate(ctx,
		ai.WithSystem(researchPlanSystemPrompt),
		ai.WithMessages(messages...),
		ai.WithOutputType(researchPlan{}),
	)
	if err != nil {
		return nil, fmt.Errorf("planning research: %w", err)
	}
	var plan researchPlan
	if err := resp.Output(&plan); err != nil {
		return nil, fmt.Errorf("parsing research plan: %w", err)
	}
	return cleanList(plan.Steps, maxPlanSteps), nil
}

// researchStep turns one plan step into search queries and retrieves the
// documents they match, skipping any already in seen.
func (gr *Graph) researchStep(ctx context.Context, step string, seen map[uuid.UUID]bool) ([]knowledge.Document, error) {
	queries, err := gr.generateQueries(ctx, step)
	if err != nil {
		return nil, err
	}

	var docs []knowledge.Document
	for _, query := range queries {
		results, err := gr.search.Search(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("searching %q: %w", query, err)
		}
		for _, d := range results {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			docs = append(docs, d)
		}
	}

	gr.logger.Debug("research step done", "step", step, "queries", len(queries), "found", len(docs))
	return docs, nil
}

func (gr *Graph) generateQueries(ctx context.Context, step string) ([]string, error) {
	resp, err := gr.generate(ctx,
		ai.WithSystem(generateQueriesSystemPrompt),
		ai.WithMessages(ai.NewUserTextMessage(step)),
		ai.WithOutputType(searchQueries{}),
	)
	if err != nil {
		return nil, fmt.Errorf("generating queries: %w", err)
	}
	var out searchQueries
	if err := resp.Output(&out); err != nil {
		return nil, fmt.Errorf("parsing queries: %w", err)
	}

	queries := cleanList(out.Queries, maxQueriesPerStep)
	if len(queries) == 0 {
		// The step itself still makes a usable query.
		queries = []string{step}
	}
	return queries, nil
}

// answer generates the user-facing reply under the given system prompt,
// streaming through callback when one is provided.
func (gr *Graph) answer(ctx context.Context, messages []*ai.Message, system string, callback StreamCallback) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithSystem(system),
		ai.WithMessages(messages...),
	}
	if callback != nil {
		opts = append(opts, ai.WithStreaming(callback))
	}

	resp, err := gr.generate(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		gr.logger.Warn("model returned an empty answer")
		text = fallbackAnswer
	}
	return text, nil
}

// conversationMessages converts the wire message log into model messages.
// Types other than human and ai are dropped, matching what stored thread
// snapshots may carry.
func conversationMessages(raw []timeline.RawMessage) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(raw))
	for _, m := range raw {
		switch m.Type {
		case timeline.TypeHuman:
			msgs = append(msgs, ai.NewUserTextMessage(m.Content))
		case timeline.TypeAI:
			msgs = append(msgs, ai.NewModelTextMessage(m.Content))
		}
	}
	return msgs
}

func hasUserMessage(raw []timeline.RawMessage) bool {
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i].Type == timeline.TypeHuman {
			return true
		}
	}
	return false
}

// formatDocs renders documents as the excerpt block the response prompt
// embeds. Indexes start at 1 and match the citation form the prompt asks
// for.
func formatDocs(docs []knowledge.Document) string {
	if len(docs) == 0 {
		return "<documents></documents>"
	}
	var sb strings.Builder
	sb.WriteString("<documents>\n")
	for i, d := range docs {
		fmt.Fprintf(&sb, "<document index=\"%d\" href=%q title=%q>\n%s\n</document>\n", i+1, d.URL, d.Title, d.Content)
	}
	sb.WriteString("</documents>")
	return sb.String()
}

// documentRefs converts store rows into the wire document shape that
// threads persist and clients render.
func documentRefs(docs []knowledge.Document) []timeline.Document {
	out := make([]timeline.Document, len(docs))
	for i, d := range docs {
		out[i] = timeline.Document{
			PageContent: d.Content,
			Metadata: map[string]any{
				"source": d.Source,
				"url":    d.URL,
				"title":  d.Title,
				"score":  d.Score,
			},
		}
	}
	return out
}

// cleanList trims entries, drops blanks, and caps the result at max.
func cleanList(items []string, max int) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		out = append(out, it)
		if len(out) == max {
			break
		}
	}
	return out
}
