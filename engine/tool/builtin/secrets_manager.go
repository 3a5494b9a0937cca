package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aionlabs/aion/engine/secrets"
	"github.com/aionlabs/aion/engine/tool"
)

type secretsParams struct {
	Action string `json:"action"          jsonschema:"required,description=One of: list, get, set, delete"`
	Key    string `json:"key,omitempty"   jsonschema:"description=Credential name, e.g. GITHUB_TOKEN (for get/set/delete)"`
	Value  string `json:"value,omitempty" jsonschema:"description=Credential value (for set)"`
}

// SecretsManagerTool exposes the credential store to the agent. Sensitive
// values are always masked on the way out; raw values only ever flow in.
type SecretsManagerTool struct {
	store *secrets.Store
}

func NewSecretsManagerTool(store *secrets.Store) *SecretsManagerTool {
	return &SecretsManagerTool{store: store}
}

func (t *SecretsManagerTool) Name() string { return "secrets_manager" }

func (t *SecretsManagerTool) Description() string {
	return "Manage stored credentials and environment configuration. " +
		"Actions: 'list' shows all keys with masked values, 'get' reads one key, " +
		"'set' stores a key, 'delete' removes one. Sensitive values are never shown in full."
}

func (t *SecretsManagerTool) Timeout() time.Duration { return 5 * time.Second }

func (t *SecretsManagerTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  tool.SchemaFor(&secretsParams{}),
	}
}

func (t *SecretsManagerTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	action := strings.ToLower(strings.TrimSpace(stringParam(params, "action")))
	key := stringParam(params, "key")
	switch action {
	case "list":
		entries := t.store.List()
		if len(entries) == 0 {
			return &tool.Result{Success: true, Output: "No credentials stored."}, nil
		}
		lines := make([]string, 0, len(entries))
		for _, entry := range entries {
			lines = append(lines, fmt.Sprintf("%s=%s", entry.Key, entry.Display))
		}
		return &tool.Result{Success: true, Output: strings.Join(lines, "\n")}, nil
	case "get":
		if key == "" {
			return tool.Failure("key is required for get"), nil
		}
		value, ok := t.store.Get(key)
		if !ok {
			return tool.Failure(fmt.Sprintf("Key %q is not set.", strings.ToUpper(key))), nil
		}
		if secrets.IsSensitive(key) {
			value = secrets.Mask(value)
		}
		return &tool.Result{Success: true, Output: value}, nil
	case "set":
		if key == "" {
			return tool.Failure("key is required for set"), nil
		}
		if err := t.store.Set(ctx, key, stringParam(params, "value")); err != nil {
			return tool.Failure(err.Error()), nil
		}
		return &tool.Result{Success: true,
			Output: fmt.Sprintf("Set %s and persisted to the env file.", strings.ToUpper(key))}, nil
	case "delete":
		if key == "" {
			return tool.Failure("key is required for delete"), nil
		}
		if err := t.store.Delete(ctx, key); err != nil {
			return tool.Failure(err.Error()), nil
		}
		return &tool.Result{Success: true,
			Output: fmt.Sprintf("Deleted %s.", strings.ToUpper(key))}, nil
	default:
		return tool.Failure(fmt.Sprintf("Unknown action: %s. Use: list, get, set, delete", action)), nil
	}
}
