package session

import (
	"testing"

	"memchat/internal/config"
	"memchat/internal/types"
)

var allModes = []config.ExecutionMode{
	config.ModeSinglePass,
	config.ModeDualPassWriteOnly,
	config.ModeDualPassAll,
}

var allOps = []types.OperationType{
	types.OperationRead,
	types.OperationWrite,
	types.OperationGeneral,
}

func TestPlanNoToolsAlwaysSingleStreamedPass(t *testing.T) {
	for _, mode := range allModes {
		for _, op := range allOps {
			plan := Plan(op, mode, false)
			if plan.PassCount != 1 || !plan.StreamFirstPass {
				t.Errorf("mode=%s op=%s: plan = %+v, want 1 streamed pass", mode, op, plan)
			}
			if plan.ToolsEnabledInPass[0] || plan.ToolsEnabledInPass[1] {
				t.Errorf("mode=%s op=%s: tools enabled without any tools", mode, op)
			}
		}
	}
}

func TestPlanSinglePass(t *testing.T) {
	for _, op := range allOps {
		plan := Plan(op, config.ModeSinglePass, true)
		if plan.PassCount != 1 {
			t.Errorf("op=%s: passes = %d", op, plan.PassCount)
		}
		// A streamed partial response cannot carry a function call.
		if plan.StreamFirstPass {
			t.Errorf("op=%s: streaming enabled alongside tools", op)
		}
		if !plan.ToolsEnabledInPass[0] {
			t.Errorf("op=%s: tools disabled", op)
		}
	}
}

func TestPlanDualPassWriteOnly(t *testing.T) {
	write := Plan(types.OperationWrite, config.ModeDualPassWriteOnly, true)
	if write.PassCount != 2 || !write.StreamFirstPass {
		t.Errorf("WRITE plan = %+v", write)
	}
	if write.ToolsEnabledInPass[0] || !write.ToolsEnabledInPass[1] {
		t.Errorf("WRITE tool passes = %v, want pass 1 off, pass 2 on", write.ToolsEnabledInPass)
	}

	read := Plan(types.OperationRead, config.ModeDualPassWriteOnly, true)
	if read.PassCount != 1 || read.StreamFirstPass || !read.ToolsEnabledInPass[0] {
		t.Errorf("READ plan = %+v, want 1 unstreamed pass with tools", read)
	}

	general := Plan(types.OperationGeneral, config.ModeDualPassWriteOnly, true)
	if general.PassCount != 1 || !general.StreamFirstPass || general.ToolsEnabledInPass[0] {
		t.Errorf("GENERAL plan = %+v, want 1 streamed pass without tools", general)
	}
}

func TestPlanDualPassAll(t *testing.T) {
	// Every classification gets the two-pass shape, including READ, where
	// this is the documented hazard.
	for _, op := range allOps {
		plan := Plan(op, config.ModeDualPassAll, true)
		if plan.PassCount != 2 || !plan.StreamFirstPass {
			t.Errorf("op=%s: plan = %+v", op, plan)
		}
		if plan.ToolsEnabledInPass[0] || !plan.ToolsEnabledInPass[1] {
			t.Errorf("op=%s: tool passes = %v", op, plan.ToolsEnabledInPass)
		}
	}
}
