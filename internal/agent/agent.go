package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/theearthwanderer/rentalagent/internal/capability"
	"github.com/theearthwanderer/rentalagent/internal/config"
	"github.com/theearthwanderer/rentalagent/internal/service"
	"github.com/theearthwanderer/rentalagent/internal/session"
	"github.com/theearthwanderer/rentalagent/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/iter"
)

// ErrTurnDepthExceeded indicates the model kept requesting capability
// invocations past the configured iteration guard.
var ErrTurnDepthExceeded = errors.New("turn iteration limit exceeded")

const systemPrompt = `You are a helpful and knowledgeable Rental Agent.
Your goal is to help users find rental properties that match their needs.

You have access to a tool 'search_listings' to find properties.
ALWAYS use the search tool when the user asks for listings or specific criteria.

When replying:
1. Be friendly and professional.
2. If you find listings, summarize the top 3-4 most relevant ones in your text response, highlighting why they match.
3. If no listings match, ask clarifying questions to adjust parameters.
4. Ask about budget, location, and bedroom count if not provided.`

// CapabilityCall records one invocation the model requested this user turn
type CapabilityCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// CapabilityResult pairs an invocation with its full-view result
type CapabilityResult struct {
	Name   string      `json:"name"`
	Result interface{} `json:"result"`
}

// TurnResponse is the caller-facing envelope for one user turn. ToolCalls
// and ToolResults are present only when at least one capability ran,
// directly or through continuation, in temporal order.
type TurnResponse struct {
	Role        string             `json:"role"`
	Content     string             `json:"content"`
	ToolCalls   []CapabilityCall   `json:"tool_calls,omitempty"`
	ToolResults []CapabilityResult `json:"tool_results,omitempty"`
}

// Agent orchestrates the tool-calling conversation loop
type Agent struct {
	completions   service.CompletionClient
	registry      *capability.Registry
	maxIterations int
	summaryTopK   int
}

// New creates an agent
func New(completions service.CompletionClient, registry *capability.Registry, cfg config.AgentConfig) *Agent {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 8
	}
	topK := cfg.SummaryTopK
	if topK <= 0 {
		topK = 10
	}
	return &Agent{
		completions:   completions,
		registry:      registry,
		maxIterations: maxIter,
		summaryTopK:   topK,
	}
}

// RunTurn processes one logical user turn: it calls the completion
// service, dispatches any requested capabilities, appends results to
// history, and continues until the model answers with plain text. On
// error the session is rewound to its pre-turn state.
func (a *Agent) RunTurn(ctx context.Context, sess *session.Session, userMessage string) (*TurnResponse, error) {
	sess.Lock()
	defer sess.Unlock()

	mark := sess.Len()
	resp, err := a.runLoop(ctx, sess, userMessage)
	if err != nil {
		sess.Rewind(mark)
		return nil, err
	}
	return resp, nil
}

func (a *Agent) runLoop(ctx context.Context, sess *session.Session, userMessage string) (*TurnResponse, error) {
	if userMessage != "" {
		sess.Append(session.Turn{Role: session.RoleUser, Content: userMessage})
	}

	var calls []CapabilityCall
	var results []CapabilityResult

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		req := service.ChatCompletionRequest{
			Messages:   a.buildMessages(sess),
			Tools:      a.toolDefinitions(),
			ToolChoice: "auto",
		}

		log.Info().Str("session_id", sess.ID).Int("iteration", iteration).Msg("calling completion service")

		resp, err := a.completions.ChatCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("%w: no choices in response", service.ErrModelUnavailable)
		}
		message := resp.Choices[0].Message

		if len(message.ToolCalls) == 0 {
			// Terminal: plain text answer
			sess.Append(session.Turn{Role: session.RoleAssistant, Content: message.Content})

			out := &TurnResponse{Role: session.RoleAssistant, Content: message.Content}
			if len(calls) > 0 {
				out.ToolCalls = calls
				out.ToolResults = results
			}
			return out, nil
		}

		invocations := make([]session.Invocation, len(message.ToolCalls))
		for i, tc := range message.ToolCalls {
			id := tc.ID
			if id == "" {
				id = uuid.NewString()
			}
			invocations[i] = session.Invocation{
				ID:        id,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}

		sess.Append(session.Turn{
			Role:        session.RoleAssistant,
			Content:     message.Content,
			Invocations: invocations,
		})

		outcomes := a.dispatchAll(ctx, invocations)

		for i, oc := range outcomes {
			if oc.fatal != nil {
				return nil, oc.fatal
			}

			sess.Append(session.Turn{
				Role:           session.RoleTool,
				Content:        oc.modelPayload,
				InvocationID:   invocations[i].ID,
				CapabilityName: invocations[i].Name,
			})

			calls = append(calls, CapabilityCall{Name: invocations[i].Name, Arguments: oc.args})
			results = append(results, CapabilityResult{Name: invocations[i].Name, Result: oc.fullView})

			if invocations[i].Name == capability.SearchListingsName && oc.args != nil {
				sess.Preferences["last_search"] = oc.args
			}
		}
	}

	return nil, fmt.Errorf("%w: %d iterations", ErrTurnDepthExceeded, a.maxIterations)
}

// outcome is the re-joined result of one dispatched invocation.
// modelPayload is what the resolving tool turn carries; fullView is what
// the caller sees. fatal aborts the whole turn (collaborator outage).
type outcome struct {
	args         map[string]interface{}
	fullView     interface{}
	modelPayload string
	fatal        error
}

// dispatchAll executes the invocations of one assistant turn. Invocations
// are independent reads, so they run concurrently; results are re-joined
// in invocation order because history order communicates invocation order
// back to the model.
func (a *Agent) dispatchAll(ctx context.Context, invocations []session.Invocation) []outcome {
	outcomes := make([]outcome, len(invocations))

	iter.ForEachIdx(invocations, func(i int, inv *session.Invocation) {
		outcomes[i] = a.dispatchOne(ctx, *inv)
	})

	return outcomes
}

func (a *Agent) dispatchOne(ctx context.Context, inv session.Invocation) outcome {
	var args map[string]interface{}
	if inv.Arguments != "" {
		if err := utils.ParseModelJSON(inv.Arguments, &args); err != nil {
			log.Warn().Str("capability", inv.Name).Err(err).Msg("unparseable invocation arguments")
			return errorOutcome(nil, fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	result, err := a.registry.Dispatch(ctx, inv.Name, args)
	switch {
	case err == nil:
		return outcome{
			args:         args,
			fullView:     result,
			modelPayload: a.modelView(inv.Name, result),
		}
	case errors.Is(err, capability.ErrUnknownCapability):
		// Resolve with a synthetic error turn so the history invariant
		// holds even when the model hallucinates a capability name.
		log.Error().Str("capability", inv.Name).Msg("unknown capability requested")
		return errorOutcome(args, fmt.Sprintf("unknown capability: %s", inv.Name))
	case errors.Is(err, capability.ErrInvalidArguments):
		log.Warn().Str("capability", inv.Name).Err(err).Msg("invocation arguments rejected")
		return errorOutcome(args, err.Error())
	default:
		// Collaborator outage: propagate, the caller decides retry policy.
		return outcome{args: args, fatal: err}
	}
}

func errorOutcome(args map[string]interface{}, msg string) outcome {
	payload := map[string]string{"error": msg}
	raw, _ := json.Marshal(payload)
	return outcome{
		args:         args,
		fullView:     payload,
		modelPayload: string(raw),
	}
}

// modelView serializes a capability result for the model. Search results
// get the token-bounded summary view; everything else goes verbatim.
func (a *Agent) modelView(name string, result interface{}) string {
	if name == capability.SearchListingsName {
		if listings, ok := asSearchResults(result); ok {
			raw, err := json.Marshal(summarizeSearch(listings, a.summaryTopK))
			if err == nil {
				return string(raw)
			}
		}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to serialize result: %v"}`, err)
	}
	return string(raw)
}

// buildMessages reconstructs the full prompt from history plus the fixed
// system instruction. History order is the sole basis for reconstruction.
func (a *Agent) buildMessages(sess *session.Session) []service.ChatMessage {
	turns := sess.History()
	messages := make([]service.ChatMessage, 0, len(turns)+1)
	messages = append(messages, service.ChatMessage{Role: session.RoleSystem, Content: systemPrompt})

	for _, t := range turns {
		msg := service.ChatMessage{Role: t.Role, Content: t.Content}
		if len(t.Invocations) > 0 {
			msg.ToolCalls = make([]service.ToolCall, len(t.Invocations))
			for i, inv := range t.Invocations {
				msg.ToolCalls[i] = service.ToolCall{
					ID:   inv.ID,
					Type: "function",
					Function: service.ToolCallFunction{
						Name:      inv.Name,
						Arguments: inv.Arguments,
					},
				}
			}
		}
		if t.Role == session.RoleTool {
			msg.ToolCallID = t.InvocationID
			msg.Name = t.CapabilityName
		}
		messages = append(messages, msg)
	}

	return messages
}

// toolDefinitions converts the capability catalogue to the wire format
func (a *Agent) toolDefinitions() []service.ToolDefinition {
	descriptors := a.registry.Describe()
	defs := make([]service.ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		var params json.RawMessage
		if d.Schema != nil {
			raw, err := json.Marshal(d.Schema)
			if err == nil {
				params = raw
			}
		}
		defs = append(defs, service.ToolDefinition{
			Type: "function",
			Function: service.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}
