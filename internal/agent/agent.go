package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/headline-ai/headline-server/internal/ai"
)

// Memory keeps the per-thread continuation state between turns. The thread id
// is the conversation id, so the same conversation continues the same logical
// session.
type Memory interface {
	LoadThread(ctx context.Context, threadID string) (string, error)
	SaveThread(ctx context.Context, threadID, summary string) error
}

// Options bound the search/fetch fan-out and the rolling thread memory.
type Options struct {
	MaxResults    int
	MaxQueries    int
	MaxTurns      int // turns of thread memory carried into summarize
	MemoryMaxSize int // byte cap on the stored thread memory
}

func (o *Options) defaults() {
	if o.MaxResults <= 0 {
		o.MaxResults = 3
	}
	if o.MaxQueries <= 0 {
		o.MaxQueries = 3
	}
	if o.MaxTurns <= 0 {
		o.MaxTurns = 20
	}
	if o.MemoryMaxSize <= 0 {
		o.MemoryMaxSize = 4096
	}
}

// Orchestrator runs one user turn through the search-and-summarize pipeline:
// classify the query into search queries, fan out the searches, fetch the top
// result pages, then merge everything into a single reply.
type Orchestrator struct {
	llm      ai.Provider
	searcher Searcher
	fetcher  Fetcher
	memory   Memory
	opts     Options
	log      zerolog.Logger
}

func New(llm ai.Provider, searcher Searcher, fetcher Fetcher, memory Memory, opts Options, log zerolog.Logger) *Orchestrator {
	opts.defaults()
	return &Orchestrator{
		llm:      llm,
		searcher: searcher,
		fetcher:  fetcher,
		memory:   memory,
		opts:     opts,
		log:      log.With().Str("component", "agent").Logger(),
	}
}

const classifyPrompt = `You split a user question into web search queries.
Reply with a JSON array of 1 to %d short search query strings and nothing else.
If the question is a single topic, reply with exactly one query.`

const summarizePrompt = `You are a news assistant. Answer the user's question
using the fetched web content below. Be concise and factual. If the content
does not answer the question, say so.`

// Run executes the pipeline for one turn and returns the reply text.
func (o *Orchestrator) Run(ctx context.Context, query, threadID string) (string, error) {
	prior, err := o.memory.LoadThread(ctx, threadID)
	if err != nil {
		// memory is best-effort; a cold thread still answers
		o.log.Warn().Err(err).Str("thread_id", threadID).Msg("load thread memory failed")
		prior = ""
	}

	queries, err := o.classify(ctx, query)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	sources := o.gather(ctx, queries)

	reply, err := o.summarize(ctx, query, prior, sources)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	if err := o.memory.SaveThread(ctx, threadID, o.nextContext(prior, query, reply)); err != nil {
		o.log.Warn().Err(err).Str("thread_id", threadID).Msg("save thread memory failed")
	}
	return reply, nil
}

// classify asks the LLM whether the query covers one or several topics and
// returns the search queries to run.
func (o *Orchestrator) classify(ctx context.Context, query string) ([]string, error) {
	out, err := o.llm.Chat(ctx, []ai.Message{
		{Role: "system", Content: fmt.Sprintf(classifyPrompt, o.opts.MaxQueries)},
		{Role: "user", Content: query},
	})
	if err != nil {
		return nil, err
	}

	var queries []string
	if err := json.Unmarshal([]byte(extractJSONArray(out)), &queries); err != nil || len(queries) == 0 {
		// model did not cooperate; search the raw query
		return []string{query}, nil
	}
	if len(queries) > o.opts.MaxQueries {
		queries = queries[:o.opts.MaxQueries]
	}
	return queries, nil
}

type source struct {
	title   string
	link    string
	content string
}

// gather runs the searches and fetches the result pages concurrently. Failed
// searches and fetches are skipped; the snippet stands in for an unfetchable
// page.
func (o *Orchestrator) gather(ctx context.Context, queries []string) []source {
	var results []SearchResult
	seen := make(map[string]bool)
	for _, q := range queries {
		rs, err := o.searcher.Search(ctx, q, o.opts.MaxResults)
		if err != nil {
			o.log.Warn().Err(err).Str("query", q).Msg("search failed")
			continue
		}
		for _, r := range rs {
			if r.Link == "" || seen[r.Link] {
				continue
			}
			seen[r.Link] = true
			results = append(results, r)
		}
	}

	sources := make([]source, len(results))
	var wg sync.WaitGroup
	for i, r := range results {
		wg.Add(1)
		go func(i int, r SearchResult) {
			defer wg.Done()
			content, err := o.fetcher.Fetch(ctx, r.Link)
			if err != nil || content == "" {
				o.log.Debug().Err(err).Str("host", hostOf(r.Link)).Msg("page fetch failed, using snippet")
				content = r.Snippet
			}
			sources[i] = source{title: r.Title, link: r.Link, content: content}
		}(i, r)
	}
	wg.Wait()
	return sources
}

func (o *Orchestrator) summarize(ctx context.Context, query, prior string, sources []source) (string, error) {
	var b strings.Builder
	if prior != "" {
		b.WriteString("Earlier in this conversation:\n")
		b.WriteString(prior)
		b.WriteString("\n\n")
	}
	if len(sources) == 0 {
		b.WriteString("No web content could be fetched for this question.\n")
	}
	for i, s := range sources {
		fmt.Fprintf(&b, "Source %d: %s (%s)\n%s\n\n", i+1, s.title, s.link, truncate(s.content, 4000))
	}
	b.WriteString("Question: ")
	b.WriteString(query)

	return o.llm.Chat(ctx, []ai.Message{
		{Role: "system", Content: summarizePrompt},
		{Role: "user", Content: b.String()},
	})
}

// nextContext rolls the thread memory forward, oldest turns dropped first.
// Turns are bounded by MaxTurns and the whole blob by MemoryMaxSize.
func (o *Orchestrator) nextContext(prior, query, reply string) string {
	var entries []string
	if prior != "" {
		entries = strings.Split(prior, "\n\n")
	}
	entries = append(entries, fmt.Sprintf("Q: %s\nA: %s", query, truncate(reply, 1000)))
	if len(entries) > o.opts.MaxTurns {
		entries = entries[len(entries)-o.opts.MaxTurns:]
	}
	next := strings.Join(entries, "\n\n")
	if len(next) > o.opts.MemoryMaxSize {
		cut := len(next) - o.opts.MemoryMaxSize
		for cut < len(next) && !utf8.RuneStart(next[cut]) {
			cut++
		}
		next = next[cut:]
	}
	return next
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// extractJSONArray pulls the first [...] span out of a model reply that may
// be wrapped in prose or code fences.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
