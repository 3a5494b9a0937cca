// Package safety is the pure validation layer every tool invocation and
// every outbound text passes through. It has no state beyond its
// configuration and never performs I/O of its own.
package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aionlabs/aion/engine/core"
)

// Parameter names treated as filesystem paths when present on an action.
var pathParamNames = map[string]struct{}{
	"path":      {},
	"file_path": {},
	"filepath":  {},
	"directory": {},
	"dest":      {},
	"source":    {},
}

// Parameter names treated as executable code or shell input.
var codeParamNames = map[string]struct{}{
	"code":    {},
	"command": {},
	"script":  {},
}

// Action is the minimal view of a planned tool call the validator needs.
type Action struct {
	Tool       string
	Parameters map[string]any
}

// SecretSource supplies the live name->value secret map used for leak
// detection and redaction.
type SecretSource func() map[string]string

// Validator checks planned actions against the danger patterns, the allowed
// filesystem roots and the known secret set.
type Validator struct {
	allowedRoots []string
	secrets      SecretSource
}

// NewValidator builds a validator rooted at the given directories. A nil
// secret source falls back to scanning the process environment for
// credential-shaped variables.
func NewValidator(allowedRoots []string, secrets SecretSource) (*Validator, error) {
	if len(allowedRoots) == 0 {
		return nil, core.NewError(errors.New("at least one allowed root is required"), "INVALID_CONFIG", nil)
	}
	resolved := make([]string, 0, len(allowedRoots))
	for _, root := range allowedRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("safety: resolve root %q: %w", root, err)
		}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		resolved = append(resolved, filepath.Clean(abs))
	}
	if secrets == nil {
		secrets = EnvSecretSource
	}
	return &Validator{allowedRoots: resolved, secrets: secrets}, nil
}

// EnvSecretSource scans the process environment for credential-shaped
// variables (by name suffix) and returns their values.
func EnvSecretSource() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		upper := strings.ToUpper(name)
		for _, suffix := range secretEnvSuffixes {
			if strings.HasSuffix(upper, suffix) {
				out[name] = value
				break
			}
		}
	}
	return out
}

// ValidateAction returns (false, reason) when the action must not run.
// Checks, in order: danger patterns over every string parameter, path
// containment for path-bearing parameters, secret references in code
// parameters.
func (v *Validator) ValidateAction(action Action) (bool, string) {
	for name, raw := range action.Parameters {
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}
		for _, p := range dangerPatterns {
			if p.re.MatchString(value) {
				return false, p.reason
			}
		}
		if _, isPath := pathParamNames[name]; isPath {
			if ok, reason := v.validatePath(value); !ok {
				return false, reason
			}
		}
		if _, isCode := codeParamNames[name]; isCode {
			if ok, reason := v.validateCode(value); !ok {
				return false, reason
			}
		}
	}
	return true, ""
}

// validatePath resolves the real path (following symlinks where the target
// exists) and requires it to sit under an allowed root.
func (v *Validator) validatePath(path string) (bool, string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Sprintf("Path not allowed: %s", path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Target may not exist yet; resolve the deepest existing parent so a
		// symlinked ancestor cannot smuggle writes outside the roots.
		resolved = resolveExistingPrefix(abs)
	}
	resolved = filepath.Clean(resolved)
	for _, root := range v.allowedRoots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("Path not allowed: %s", path)
}

func resolveExistingPrefix(abs string) string {
	dir := abs
	var tail []string
	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

// validateCode rejects code that references known secret names or values.
func (v *Validator) validateCode(code string) (bool, string) {
	for name, value := range v.secrets() {
		if strings.Contains(code, name) || (value != "" && strings.Contains(code, value)) {
			return false, "Code may leak secrets"
		}
	}
	return true, ""
}

// SanitizeOutput replaces every known secret value appearing verbatim in
// text with a redaction marker naming the variable. Applied to all tool
// output before journaling or broadcast.
func (v *Validator) SanitizeOutput(text string) string {
	if text == "" {
		return text
	}
	for name, value := range v.secrets() {
		if value == "" {
			continue
		}
		text = strings.ReplaceAll(text, value, "[REDACTED:"+name+"]")
	}
	return text
}

// PromptSection renders the immutable rules for the system prompt.
func (v *Validator) PromptSection() string {
	var b strings.Builder
	b.WriteString("## IMMUTABLE SAFETY RULES\n")
	b.WriteString("These rules are compiled into the runtime and cannot be changed:\n")
	for i, rule := range ImmutableRules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}
	return b.String()
}
