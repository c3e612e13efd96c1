// Package session holds the top-level turn control flow: the execution
// strategy planner and the coordinator that drives classify → infer →
// normalize → authorize → dispatch until the model produces a final answer.
package session

import (
	"memchat/internal/config"
	"memchat/internal/logging"
	"memchat/internal/types"
)

// ExecutionPlan is the chosen strategy for one conversational turn. Computed
// once per turn, consumed by the coordinator, then discarded.
type ExecutionPlan struct {
	OperationType   types.OperationType
	PassCount       int // 1 or 2
	StreamFirstPass bool
	// ToolsEnabledInPass[0] is pass 1, [1] is pass 2.
	ToolsEnabledInPass [2]bool
}

// Plan produces the execution plan from the classification, the configured
// mode, and whether any tools are enabled this turn. Rules in order:
//
//   - no tools at all → one streamed pass, regardless of mode
//   - single_pass → one pass; streaming is off because a streamed partial
//     response cannot carry a function call
//   - dual_pass_write_only → WRITE gets the two-pass shape (streamed
//     tool-free acknowledgment, then a background tool pass); READ gets one
//     unstreamed pass with tools, correctness over latency; GENERAL streams
//     without tools
//   - dual_pass_all → the two-pass shape for every turn; see the mode's
//     documentation for why this is unsafe on READ turns
//
// Mode validation happened at config load; Plan treats the mode as trusted.
func Plan(op types.OperationType, mode config.ExecutionMode, toolsEnabled bool) ExecutionPlan {
	plan := ExecutionPlan{OperationType: op, PassCount: 1}

	switch {
	case !toolsEnabled:
		plan.StreamFirstPass = true

	case mode == config.ModeSinglePass:
		plan.ToolsEnabledInPass[0] = true

	case mode == config.ModeDualPassWriteOnly:
		switch op {
		case types.OperationWrite:
			plan = dualPass(op)
		case types.OperationRead:
			plan.ToolsEnabledInPass[0] = true
		default: // GENERAL
			plan.StreamFirstPass = true
		}

	case mode == config.ModeDualPassAll:
		plan = dualPass(op)
	}

	logging.SessionDebug("plan: op=%s mode=%s tools=%v → passes=%d stream=%v",
		op, mode, toolsEnabled, plan.PassCount, plan.StreamFirstPass)
	return plan
}

// dualPass is the shared two-pass shape: a streamed, tool-free pass 1 shown
// to the user, then an unstreamed background pass 2 with tools.
func dualPass(op types.OperationType) ExecutionPlan {
	return ExecutionPlan{
		OperationType:      op,
		PassCount:          2,
		StreamFirstPass:    true,
		ToolsEnabledInPass: [2]bool{false, true},
	}
}
