package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/theearthwanderer/rentalagent/internal/capability"
	"github.com/theearthwanderer/rentalagent/internal/config"
	"github.com/theearthwanderer/rentalagent/internal/model"
	"github.com/theearthwanderer/rentalagent/internal/service"
	"github.com/theearthwanderer/rentalagent/internal/session"
)

// scriptedCompletions replays a fixed response sequence and records every
// request it receives.
type scriptedCompletions struct {
	responses []*service.ChatCompletionResponse
	errs      []error
	requests  []service.ChatCompletionRequest
}

func (s *scriptedCompletions) ChatCompletion(_ context.Context, req service.ChatCompletionRequest) (*service.ChatCompletionResponse, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		return nil, fmt.Errorf("unscripted completion call %d", i)
	}
	return s.responses[i], nil
}

type stubSearcher struct {
	lastQuery model.SearchQuery
	results   []model.SearchResult
	err       error
	calls     int
}

func (s *stubSearcher) Search(_ context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	s.calls++
	s.lastQuery = q
	return s.results, s.err
}

type stubFetcher struct {
	listings map[string]*model.Listing
}

func (s *stubFetcher) GetListing(_ context.Context, id string) (*model.Listing, error) {
	return s.listings[id], nil
}

func textResponse(content string) *service.ChatCompletionResponse {
	return &service.ChatCompletionResponse{
		Choices: []service.ChatCompletionChoice{
			{Message: service.ChatMessage{Role: session.RoleAssistant, Content: content}, FinishReason: "stop"},
		},
	}
}

func toolResponse(calls ...service.ToolCall) *service.ChatCompletionResponse {
	return &service.ChatCompletionResponse{
		Choices: []service.ChatCompletionChoice{
			{Message: service.ChatMessage{Role: session.RoleAssistant, ToolCalls: calls}, FinishReason: "tool_calls"},
		},
	}
}

func toolCall(id, name, args string) service.ToolCall {
	return service.ToolCall{
		ID:       id,
		Type:     "function",
		Function: service.ToolCallFunction{Name: name, Arguments: args},
	}
}

func newTestAgent(t *testing.T, completions service.CompletionClient, searcher *stubSearcher, fetcher *stubFetcher, cfg config.AgentConfig) *Agent {
	t.Helper()
	registry := capability.NewRegistry()
	if err := registry.Register(capability.NewSearchListings(searcher)); err != nil {
		t.Fatalf("register search_listings: %v", err)
	}
	if err := registry.Register(capability.NewGetListingDetails(fetcher)); err != nil {
		t.Fatalf("register get_listing_details: %v", err)
	}
	return New(completions, registry, cfg)
}

func sampleResults(n int) []model.SearchResult {
	out := make([]model.SearchResult, n)
	for i := range out {
		d := float64(i) / 10
		out[i] = model.SearchResult{
			Listing:  model.Listing{ID: fmt.Sprintf("listing_%03d", i), Title: "Unit", Price: 2000 + i},
			Distance: &d,
		}
	}
	return out
}

func TestRunTurnPlainAnswer(t *testing.T) {
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
		textResponse("Hi! What's your budget and preferred area?"),
	}}
	agent := newTestAgent(t, completions, &stubSearcher{}, &stubFetcher{}, config.AgentConfig{})

	sess := session.New()
	resp, err := agent.RunTurn(context.Background(), sess, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Role != session.RoleAssistant || resp.Content == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.ToolCalls != nil || resp.ToolResults != nil {
		t.Error("no capability ran, accumulators must be absent")
	}

	sess.Lock()
	defer sess.Unlock()
	if sess.Len() != 2 {
		t.Fatalf("expected user + assistant turns, got %d", sess.Len())
	}
	if err := sess.CheckInvariant(); err != nil {
		t.Errorf("history invariant violated: %v", err)
	}

	// Request shape: system prompt first, then the user turn, with the
	// capability catalogue attached.
	req := completions.requests[0]
	if req.Messages[0].Role != session.RoleSystem {
		t.Error("first message must be the system prompt")
	}
	if req.Messages[1].Role != session.RoleUser || req.Messages[1].Content != "hello" {
		t.Error("user turn missing from the prompt")
	}
	if len(req.Tools) != 2 || req.ToolChoice != "auto" {
		t.Errorf("capability catalogue not attached: %d tools, choice %q", len(req.Tools), req.ToolChoice)
	}
}

func TestRunTurnSearchFlow(t *testing.T) {
	searcher := &stubSearcher{results: sampleResults(15)}
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
		toolResponse(toolCall("call_1", capability.SearchListingsName,
			`{"query": "1 bedroom", "max_price": 3500, "min_beds": 1, "max_beds": 1, "neighborhood": "SoMa", "parking": true}`)),
		textResponse("Here are a few places that fit."),
	}}
	agent := newTestAgent(t, completions, searcher, &stubFetcher{}, config.AgentConfig{})

	sess := session.New()
	resp, err := agent.RunTurn(context.Background(), sess, "find a 1-bedroom under $3500 in SoMa with parking")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := searcher.lastQuery
	if q.Query != "1 bedroom" {
		t.Errorf("query text not forwarded: %q", q.Query)
	}
	if q.Filters.MaxPrice == nil || *q.Filters.MaxPrice != 3500 {
		t.Error("max_price not forwarded")
	}
	if q.Filters.Parking == nil || !*q.Filters.Parking {
		t.Error("parking flag not forwarded")
	}

	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != capability.SearchListingsName {
		t.Fatalf("expected one recorded search call, got %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["neighborhood"] != "SoMa" {
		t.Error("recorded call should carry the parsed arguments")
	}

	// The caller gets the full view, untruncated.
	full, ok := resp.ToolResults[0].Result.([]model.SearchResult)
	if !ok || len(full) != 15 {
		t.Fatalf("expected full result view with 15 rows, got %T", resp.ToolResults[0].Result)
	}

	if _, ok := sess.Preferences["last_search"]; !ok {
		t.Error("search arguments should be remembered on the session")
	}

	// The model gets the truncated summary view in the resolving tool turn.
	followup := completions.requests[1]
	toolMsg := followup.Messages[len(followup.Messages)-1]
	if toolMsg.Role != session.RoleTool || toolMsg.ToolCallID != "call_1" {
		t.Fatalf("resolving tool message malformed: %+v", toolMsg)
	}
	if !strings.Contains(toolMsg.Content, `"total_matches":15`) {
		t.Errorf("tool payload should report total matches: %s", toolMsg.Content)
	}
	if !strings.Contains(toolMsg.Content, `"showing":10`) {
		t.Errorf("tool payload should be capped at the summary top-K: %s", toolMsg.Content)
	}

	sess.Lock()
	defer sess.Unlock()
	if sess.Len() != 4 {
		t.Fatalf("expected user/assistant/tool/assistant turns, got %d", sess.Len())
	}
	if err := sess.CheckInvariant(); err != nil {
		t.Errorf("history invariant violated: %v", err)
	}
}

func TestRunTurnZeroResults(t *testing.T) {
	searcher := &stubSearcher{results: []model.SearchResult{}}
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
		toolResponse(toolCall("call_1", capability.SearchListingsName, `{"query": "castle", "max_price": 100}`)),
		textResponse("Nothing matched. Could you raise the budget?"),
	}}
	agent := newTestAgent(t, completions, searcher, &stubFetcher{}, config.AgentConfig{})

	sess := session.New()
	resp, err := agent.RunTurn(context.Background(), sess, "a castle for $100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	toolMsg := completions.requests[1].Messages[len(completions.requests[1].Messages)-1]
	if !strings.Contains(toolMsg.Content, `"total_matches":0`) {
		t.Errorf("empty result set must still produce a well-formed payload: %s", toolMsg.Content)
	}
	if resp.Content == "" {
		t.Error("the model's clarifying question should come back as the answer")
	}
}

func TestRunTurnListingDetails(t *testing.T) {
	fetcher := &stubFetcher{listings: map[string]*model.Listing{
		"listing_001": {ID: "listing_001", Title: "Corner loft"},
	}}

	t.Run("found", func(t *testing.T) {
		completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
			toolResponse(toolCall("call_1", capability.GetListingDetailsName, `{"listing_id": "listing_001"}`)),
			textResponse("It's a corner loft."),
		}}
		agent := newTestAgent(t, completions, &stubSearcher{}, fetcher, config.AgentConfig{})

		resp, err := agent.RunTurn(context.Background(), session.New(), "tell me about listing_001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		listing, ok := resp.ToolResults[0].Result.(*model.Listing)
		if !ok || listing.Title != "Corner loft" {
			t.Errorf("expected the full listing, got %+v", resp.ToolResults[0].Result)
		}
	})

	t.Run("missing resolves with error payload", func(t *testing.T) {
		completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
			toolResponse(toolCall("call_1", capability.GetListingDetailsName, `{"listing_id": "nope"}`)),
			textResponse("I couldn't find that one."),
		}}
		agent := newTestAgent(t, completions, &stubSearcher{}, fetcher, config.AgentConfig{})

		sess := session.New()
		_, err := agent.RunTurn(context.Background(), sess, "tell me about nope")
		if err != nil {
			t.Fatalf("missing listing must not abort the turn: %v", err)
		}

		toolMsg := completions.requests[1].Messages[len(completions.requests[1].Messages)-1]
		if !strings.Contains(toolMsg.Content, "Listing not found") {
			t.Errorf("payload should carry the not-found marker: %s", toolMsg.Content)
		}

		sess.Lock()
		defer sess.Unlock()
		if err := sess.CheckInvariant(); err != nil {
			t.Errorf("history invariant violated: %v", err)
		}
	})
}

func TestRunTurnUnknownCapability(t *testing.T) {
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
		toolResponse(toolCall("call_1", "book_viewing", `{"listing_id": "x"}`)),
		textResponse("I can't book viewings, but I can search for listings."),
	}}
	agent := newTestAgent(t, completions, &stubSearcher{}, &stubFetcher{}, config.AgentConfig{})

	sess := session.New()
	resp, err := agent.RunTurn(context.Background(), sess, "book a viewing")
	if err != nil {
		t.Fatalf("hallucinated capability must resolve, not abort: %v", err)
	}

	payload, ok := resp.ToolResults[0].Result.(map[string]string)
	if !ok || !strings.Contains(payload["error"], "unknown capability") {
		t.Errorf("expected synthetic error payload, got %+v", resp.ToolResults[0].Result)
	}

	sess.Lock()
	defer sess.Unlock()
	if err := sess.CheckInvariant(); err != nil {
		t.Errorf("synthetic resolution must keep the invariant: %v", err)
	}
}

func TestRunTurnInvalidArguments(t *testing.T) {
	searcher := &stubSearcher{}
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
		toolResponse(toolCall("call_1", capability.SearchListingsName, `{"max_price": "cheap"}`)),
		textResponse("Let me try that differently. What's your budget in dollars?"),
	}}
	agent := newTestAgent(t, completions, searcher, &stubFetcher{}, config.AgentConfig{})

	sess := session.New()
	resp, err := agent.RunTurn(context.Background(), sess, "something cheap")
	if err != nil {
		t.Fatalf("invalid arguments must resolve, not abort: %v", err)
	}
	if searcher.calls != 0 {
		t.Error("rejected arguments must not reach the search engine")
	}

	payload, ok := resp.ToolResults[0].Result.(map[string]string)
	if !ok || payload["error"] == "" {
		t.Errorf("expected error payload, got %+v", resp.ToolResults[0].Result)
	}

	sess.Lock()
	defer sess.Unlock()
	if err := sess.CheckInvariant(); err != nil {
		t.Errorf("history invariant violated: %v", err)
	}
}

func TestRunTurnModelUnavailableRollback(t *testing.T) {
	completions := &scriptedCompletions{errs: []error{
		fmt.Errorf("%w: 503", service.ErrModelUnavailable),
	}}
	agent := newTestAgent(t, completions, &stubSearcher{}, &stubFetcher{}, config.AgentConfig{})

	sess := session.New()
	_, err := agent.RunTurn(context.Background(), sess, "hello")
	if !errors.Is(err, service.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}

	sess.Lock()
	defer sess.Unlock()
	if sess.Len() != 0 {
		t.Errorf("failed turn must leave no partial history, got %d turns", sess.Len())
	}
}

func TestRunTurnBackendOutageRollback(t *testing.T) {
	searcher := &stubSearcher{err: fmt.Errorf("%w: connection refused", service.ErrSearchBackendUnavailable)}
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
		toolResponse(toolCall("call_1", capability.SearchListingsName, `{"query": "loft"}`)),
	}}
	agent := newTestAgent(t, completions, searcher, &stubFetcher{}, config.AgentConfig{})

	sess := session.New()
	_, err := agent.RunTurn(context.Background(), sess, "a loft")
	if !errors.Is(err, service.ErrSearchBackendUnavailable) {
		t.Fatalf("expected ErrSearchBackendUnavailable, got %v", err)
	}

	sess.Lock()
	defer sess.Unlock()
	if sess.Len() != 0 {
		t.Errorf("failed turn must leave no partial history, got %d turns", sess.Len())
	}
}

func TestRunTurnDepthGuard(t *testing.T) {
	searcher := &stubSearcher{results: sampleResults(1)}
	// The model keeps asking for searches and never answers.
	loop := toolResponse(toolCall("", capability.SearchListingsName, `{"query": "again"}`))
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{loop, loop, loop}}
	agent := newTestAgent(t, completions, searcher, &stubFetcher{}, config.AgentConfig{MaxIterations: 2})

	sess := session.New()
	_, err := agent.RunTurn(context.Background(), sess, "search forever")
	if !errors.Is(err, ErrTurnDepthExceeded) {
		t.Fatalf("expected ErrTurnDepthExceeded, got %v", err)
	}
	if len(completions.requests) != 2 {
		t.Errorf("iteration guard should stop after 2 calls, made %d", len(completions.requests))
	}

	sess.Lock()
	defer sess.Unlock()
	if sess.Len() != 0 {
		t.Errorf("aborted turn must leave no partial history, got %d turns", sess.Len())
	}
}

func TestRunTurnAccumulatorOrdering(t *testing.T) {
	searcher := &stubSearcher{results: sampleResults(2)}
	fetcher := &stubFetcher{listings: map[string]*model.Listing{
		"listing_000": {ID: "listing_000", Title: "First unit"},
	}}
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
		toolResponse(toolCall("call_1", capability.SearchListingsName, `{"query": "loft"}`)),
		toolResponse(toolCall("call_2", capability.GetListingDetailsName, `{"listing_id": "listing_000"}`)),
		textResponse("The first one looks best."),
	}}
	agent := newTestAgent(t, completions, searcher, fetcher, config.AgentConfig{})

	sess := session.New()
	resp, err := agent.RunTurn(context.Background(), sess, "find a loft and describe the best one")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{capability.SearchListingsName, capability.GetListingDetailsName}
	if len(resp.ToolCalls) != len(want) {
		t.Fatalf("expected %d recorded calls, got %d", len(want), len(resp.ToolCalls))
	}
	for i, name := range want {
		if resp.ToolCalls[i].Name != name {
			t.Errorf("call %d: expected %s, got %s", i, name, resp.ToolCalls[i].Name)
		}
		if resp.ToolResults[i].Name != name {
			t.Errorf("result %d: expected %s, got %s", i, name, resp.ToolResults[i].Name)
		}
	}

	sess.Lock()
	defer sess.Unlock()
	// user, assistant+inv, tool, assistant+inv, tool, assistant
	if sess.Len() != 6 {
		t.Fatalf("expected 6 turns, got %d", sess.Len())
	}
	if err := sess.CheckInvariant(); err != nil {
		t.Errorf("history invariant violated: %v", err)
	}
}

func TestRunTurnParallelInvocationsKeepOrder(t *testing.T) {
	searcher := &stubSearcher{results: sampleResults(1)}
	fetcher := &stubFetcher{listings: map[string]*model.Listing{
		"listing_000": {ID: "listing_000", Title: "First unit"},
	}}
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
		toolResponse(
			toolCall("call_1", capability.SearchListingsName, `{"query": "loft"}`),
			toolCall("call_2", capability.GetListingDetailsName, `{"listing_id": "listing_000"}`),
		),
		textResponse("Done."),
	}}
	agent := newTestAgent(t, completions, searcher, fetcher, config.AgentConfig{})

	sess := session.New()
	resp, err := agent.RunTurn(context.Background(), sess, "do both")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.ToolResults[0].Name != capability.SearchListingsName ||
		resp.ToolResults[1].Name != capability.GetListingDetailsName {
		t.Error("results must be joined in invocation order")
	}

	// Tool turns resolve in the same order the assistant emitted them.
	sess.Lock()
	defer sess.Unlock()
	history := sess.History()
	if history[2].InvocationID != "call_1" || history[3].InvocationID != "call_2" {
		t.Errorf("tool turns out of order: %s then %s", history[2].InvocationID, history[3].InvocationID)
	}
	if err := sess.CheckInvariant(); err != nil {
		t.Errorf("history invariant violated: %v", err)
	}
}

func TestRunTurnFollowUpKeepsHistory(t *testing.T) {
	searcher := &stubSearcher{results: sampleResults(3)}
	completions := &scriptedCompletions{responses: []*service.ChatCompletionResponse{
		toolResponse(toolCall("call_1", capability.SearchListingsName, `{"query": "loft", "max_price": 3500}`)),
		textResponse("Found three lofts."),
		toolResponse(toolCall("call_2", capability.SearchListingsName, `{"query": "loft", "max_price": 3500, "pets_allowed": true}`)),
		textResponse("Two of them allow pets."),
	}}
	agent := newTestAgent(t, completions, searcher, &stubFetcher{}, config.AgentConfig{})

	sess := session.New()
	if _, err := agent.RunTurn(context.Background(), sess, "lofts under 3500"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := agent.RunTurn(context.Background(), sess, "which of those allow pets?"); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	// The second turn's prompt must replay the entire first turn.
	secondPrompt := completions.requests[2].Messages
	if len(secondPrompt) != 6 { // system + 4 prior turns + new user turn
		t.Fatalf("expected 6 prompt messages, got %d", len(secondPrompt))
	}
	if secondPrompt[2].ToolCalls == nil {
		t.Error("prior assistant invocation must be replayed in the prompt")
	}

	if searcher.lastQuery.Filters.PetsAllowed == nil || !*searcher.lastQuery.Filters.PetsAllowed {
		t.Error("follow-up narrowing filter not forwarded")
	}

	sess.Lock()
	defer sess.Unlock()
	if sess.Len() != 8 {
		t.Errorf("expected 8 turns across both exchanges, got %d", sess.Len())
	}
	if err := sess.CheckInvariant(); err != nil {
		t.Errorf("history invariant violated: %v", err)
	}
}
