package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aionlabs/aion/engine/skills"
	"github.com/aionlabs/aion/engine/tool"
)

type skillsParams struct {
	Action  string `json:"action"            jsonschema:"required,description=One of: list, read, write, delete"`
	Name    string `json:"name,omitempty"    jsonschema:"description=Skill name, e.g. coding-conventions (for read/write/delete)"`
	Content string `json:"content,omitempty" jsonschema:"description=Skill content in markdown with a # Title heading (for write)"`
}

// SkillsTool lets the agent build and consult its own knowledge library.
type SkillsTool struct {
	store *skills.Store
}

func NewSkillsTool(store *skills.Store) *SkillsTool {
	return &SkillsTool{store: store}
}

func (t *SkillsTool) Name() string { return "skills" }

func (t *SkillsTool) Description() string {
	return "Manage your skill library: reusable knowledge saved as markdown. " +
		"Actions: 'list' shows available skills, 'read' loads one into context, " +
		"'write' creates or updates one, 'delete' removes one. " +
		"Write down lessons and procedures you want to keep."
}

func (t *SkillsTool) Timeout() time.Duration { return 5 * time.Second }

func (t *SkillsTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  tool.SchemaFor(&skillsParams{}),
	}
}

func (t *SkillsTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	action := strings.ToLower(strings.TrimSpace(stringParam(params, "action")))
	name := stringParam(params, "name")
	switch action {
	case "list":
		listed, err := t.store.List(ctx)
		if err != nil {
			return tool.Failure(err.Error()), nil
		}
		if len(listed) == 0 {
			return &tool.Result{Success: true,
				Output: "No skills found. Create one with action='write'."}, nil
		}
		lines := make([]string, 0, len(listed))
		for _, skill := range listed {
			line := fmt.Sprintf("- %s: %s", skill.Name, skill.Title)
			if skill.Description != "" {
				line += " (" + skill.Description + ")"
			}
			lines = append(lines, line)
		}
		return &tool.Result{Success: true, Output: strings.Join(lines, "\n")}, nil
	case "read":
		content, err := t.store.Read(ctx, name)
		if errors.Is(err, skills.ErrNotFound) {
			return tool.Failure(fmt.Sprintf(
				"Skill %q not found. Use action='list' to see available skills.", name)), nil
		}
		if err != nil {
			return tool.Failure(err.Error()), nil
		}
		return &tool.Result{Success: true, Output: content}, nil
	case "write":
		if err := t.store.Write(ctx, name, stringParam(params, "content")); err != nil {
			return tool.Failure(err.Error()), nil
		}
		return &tool.Result{Success: true, Output: fmt.Sprintf("Skill %q saved.", name)}, nil
	case "delete":
		err := t.store.Delete(ctx, name)
		if errors.Is(err, skills.ErrNotFound) {
			return tool.Failure(fmt.Sprintf("Skill %q not found.", name)), nil
		}
		if err != nil {
			return tool.Failure(err.Error()), nil
		}
		return &tool.Result{Success: true, Output: fmt.Sprintf("Skill %q deleted.", name)}, nil
	default:
		return tool.Failure(fmt.Sprintf("Unknown action: %s. Use: list, read, write, delete", action)), nil
	}
}
