package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"memchat/internal/config"
	"memchat/internal/logging"
	"memchat/internal/perception"
	"memchat/internal/policy"
	"memchat/internal/protocol"
	"memchat/internal/tools"
	"memchat/internal/types"
)

// maxToolRounds bounds the infer → dispatch loop within one pass so a model
// stuck re-requesting tools cannot spin forever.
const maxToolRounds = 8

const systemPrompt = `You are memchat, a conversational assistant with persistent long-term memory and a small set of tools.
When the user shares a fact, preference, or anything worth keeping, store it with add_memory, phrased in third person.
When the user asks about something you may have stored, search with search_memories before answering.
If a tool request is refused by policy, explain the refusal briefly; never pretend the action happened.`

// pass2Prompt steers the hidden background pass of a dual-pass turn.
const pass2Prompt = `The user already received a conversational acknowledgment for their last message.
Your only job now is to perform the tool operations that message requires (storing, updating, or deleting memories).
Do not address the user. Reply with a one-line summary of what you did.`

// ConfigSource yields the per-turn configuration snapshot. *config.Watcher
// satisfies it; tests use a static source.
type ConfigSource interface {
	Snapshot() *config.Config
}

// StaticConfig is a ConfigSource for a fixed configuration.
type StaticConfig struct {
	Config *config.Config
}

func (s StaticConfig) Snapshot() *config.Config { return s.Config.Clone() }

// PassResult is the retained outcome of one inference pass.
type PassResult struct {
	Text        string
	ToolResults []tools.ToolResult
	Err         error
}

// TurnReport is what one user turn produced. When the plan scheduled a
// second pass, Background delivers its retained result exactly once; the
// side effect becomes visible to later turns when it commits, so a WRITE
// acknowledged in pass 1 is not read-your-writes within the same turn.
type TurnReport struct {
	TurnID      string
	Operation   types.OperationType
	Plan        ExecutionPlan
	Response    string
	ToolResults []tools.ToolResult
	Background  <-chan PassResult
}

// Coordinator drives turns end to end: snapshot configuration, classify,
// plan, infer, normalize, authorize, dispatch, loop. One coordinator serves
// one conversation.
type Coordinator struct {
	client  types.LLMClient
	reg     *tools.Registry
	engine  *policy.Engine
	configs ConfigSource

	mu      sync.Mutex
	history []types.Message
	turnSeq int

	bg errgroup.Group
}

// NewCoordinator assembles a coordinator over the given collaborators.
func NewCoordinator(client types.LLMClient, reg *tools.Registry, engine *policy.Engine, configs ConfigSource) *Coordinator {
	return &Coordinator{
		client:  client,
		reg:     reg,
		engine:  engine,
		configs: configs,
		history: []types.Message{{Role: types.RoleSystem, Content: systemPrompt}},
	}
}

// RunTurn executes one user turn. When the plan streams, chunks are delivered
// to sink as they arrive; the full response is also returned in the report.
func (c *Coordinator) RunTurn(ctx context.Context, input string, sink func(chunk string)) (*TurnReport, error) {
	cfg := c.configs.Snapshot()
	view := c.reg.Snapshot(cfg)

	op := perception.ClassifyOperation(input)
	plan := Plan(op, config.ExecutionMode(cfg.Execution.Mode), view.AnyEnabled())

	c.mu.Lock()
	c.turnSeq++
	turnID := fmt.Sprintf("turn-%d", c.turnSeq)
	c.history = append(c.history, types.Message{Role: types.RoleUser, Content: input})
	messages := append([]types.Message(nil), c.history...)
	c.mu.Unlock()

	logging.Session("%s: op=%s passes=%d stream=%v", turnID, op, plan.PassCount, plan.StreamFirstPass)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditTurnStart,
		TurnID:    turnID,
		Action:    string(op),
		Success:   true,
	})

	report := &TurnReport{TurnID: turnID, Operation: op, Plan: plan}

	// Pass 1: the user-visible pass.
	var pass1 PassResult
	if plan.StreamFirstPass {
		pass1 = c.runStreamingPass(ctx, messages, sink)
	} else {
		pass1 = c.runPass(ctx, messages, view, plan.ToolsEnabledInPass[0])
	}
	if pass1.Err != nil {
		logging.Audit(logging.AuditEvent{
			EventType: logging.AuditTurnEnd, TurnID: turnID, Error: pass1.Err.Error(),
		})
		return nil, fmt.Errorf("inference pass failed: %w", pass1.Err)
	}
	report.Response = pass1.Text
	report.ToolResults = pass1.ToolResults

	c.mu.Lock()
	c.history = append(c.history, types.Message{Role: types.RoleAssistant, Content: pass1.Text})
	c.mu.Unlock()

	// Pass 2: background, unstreamed, tools on. Its result is retained on
	// the report, never dropped, but the interactive caller does not wait.
	if plan.PassCount == 2 {
		background := make(chan PassResult, 1)
		report.Background = background

		// The turn's context may end with the prompt; the side effect
		// must still commit.
		bgCtx := context.WithoutCancel(ctx)
		bgMessages := append(append([]types.Message(nil), messages...),
			types.Message{Role: types.RoleSystem, Content: pass2Prompt})

		c.bg.Go(func() error {
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditPassStart, TurnID: turnID, Action: "background", Success: true,
			})
			result := c.runPass(bgCtx, bgMessages, view, plan.ToolsEnabledInPass[1])
			if result.Err != nil {
				logging.Session("%s: background pass failed: %v", turnID, result.Err)
			}
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditPassEnd,
				TurnID:    turnID,
				Action:    "background",
				Success:   result.Err == nil,
			})
			background <- result
			close(background)
			return nil
		})
	}

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditTurnEnd, TurnID: turnID, Success: true,
	})
	return report, nil
}

// Wait blocks until all scheduled background passes complete. Call before
// shutdown so acknowledged writes are not lost.
func (c *Coordinator) Wait() {
	c.bg.Wait()
}

// runStreamingPass streams a tool-free completion to the sink.
func (c *Coordinator) runStreamingPass(ctx context.Context, messages []types.Message, sink func(string)) PassResult {
	contentChan, errorChan := c.client.CompleteWithStreaming(ctx, messages)

	var full strings.Builder
	for chunk := range contentChan {
		full.WriteString(chunk)
		if sink != nil {
			sink(chunk)
		}
	}
	if err := <-errorChan; err != nil {
		return PassResult{Err: err}
	}
	return PassResult{Text: full.String()}
}

// runPass runs one unstreamed pass. With tools on it loops: infer, normalize,
// authorize, dispatch, inject results, repeat until the model stops
// requesting tools or the round bound is hit.
func (c *Coordinator) runPass(ctx context.Context, messages []types.Message, view *tools.View, toolsOn bool) PassResult {
	if !toolsOn {
		text, err := c.client.Complete(ctx, messages)
		return PassResult{Text: text, Err: err}
	}

	dispatcher := tools.NewDispatcher(view)
	definitions := view.Definitions()
	var allResults []tools.ToolResult

	for round := 0; round < maxToolRounds; round++ {
		resp, err := c.client.CompleteWithTools(ctx, messages, definitions)
		if err != nil {
			return PassResult{ToolResults: allResults, Err: err}
		}

		text, calls := protocol.Normalize(resp)
		if len(calls) == 0 {
			return PassResult{Text: text, ToolResults: allResults}
		}

		if text != "" {
			messages = append(messages, types.Message{Role: types.RoleAssistant, Content: text})
		}
		for _, call := range calls {
			result := c.execute(ctx, dispatcher, view, call)
			allResults = append(allResults, result)
			messages = append(messages, types.Message{
				Role:    types.RoleTool,
				Name:    call.ToolName,
				Content: renderResult(result),
			})
		}
	}

	// The model kept requesting tools; force a final tool-free answer.
	messages = append(messages, types.Message{
		Role:    types.RoleSystem,
		Content: "Tool budget for this turn is exhausted. Answer the user now with what you have.",
	})
	text, err := c.client.Complete(ctx, messages)
	return PassResult{Text: text, ToolResults: allResults, Err: err}
}

// execute authorizes and dispatches one call. A policy denial becomes a
// structured refusal result fed back into the conversation, never a crash
// and never a silent drop.
func (c *Coordinator) execute(ctx context.Context, dispatcher *tools.Dispatcher, view *tools.View, call types.ToolInvocationRequest) tools.ToolResult {
	decision := c.engine.Authorize(call, view.Descriptor(call.ToolName))
	if !decision.Allowed {
		return tools.ToolResult{
			ToolName: call.ToolName,
			Error:    fmt.Sprintf("refused by policy (%s): %s", decision.Reason, decision.Detail),
		}
	}
	return dispatcher.Dispatch(ctx, call, decision)
}

// renderResult formats a tool outcome for re-injection into the transcript.
func renderResult(r tools.ToolResult) string {
	if r.TimedOut {
		return fmt.Sprintf("[%s timed out: %s]", r.ToolName, r.Error)
	}
	if r.Error != "" {
		return fmt.Sprintf("[%s failed: %s]", r.ToolName, r.Error)
	}
	return r.Result
}

// History returns a copy of the transcript, for the conversation surface.
func (c *Coordinator) History() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.history...)
}
