package builtin

import (
	"errors"

	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/memory"
	"github.com/aionlabs/aion/engine/secrets"
	"github.com/aionlabs/aion/engine/skills"
	"github.com/aionlabs/aion/engine/tool"
)

// CoreDeps collects everything the self-management tool set needs.
type CoreDeps struct {
	Vector  *memory.VectorMemory
	Working *memory.WorkingMemory
	Secrets *secrets.Store
	Skills  *skills.Store
	Ledger  BudgetStatusSource
}

// RegisterCore wires the self-management tools into the dispatcher. All
// dependencies are required; the set is useless in parts.
func RegisterCore(d *tool.Dispatcher, deps CoreDeps) error {
	if d == nil {
		return core.NewError(errors.New("dispatcher is required"), "MISSING_DEPENDENCY", nil)
	}
	if deps.Vector == nil || deps.Working == nil || deps.Secrets == nil ||
		deps.Skills == nil || deps.Ledger == nil {
		return core.NewError(errors.New("all core tool dependencies are required"),
			"MISSING_DEPENDENCY", nil)
	}
	for _, t := range []tool.Tool{
		NewMemoryWriteTool(deps.Vector),
		NewMemoryConfigTool(deps.Working),
		NewSecretsManagerTool(deps.Secrets),
		NewSkillsTool(deps.Skills),
		NewBudgetQueryTool(deps.Ledger),
	} {
		if err := d.Register(t); err != nil {
			return err
		}
	}
	return nil
}
