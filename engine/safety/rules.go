package safety

import "regexp"

// ImmutableRules are rendered into every system prompt. They are compiled
// into the binary; no runtime path can change or remove them.
var ImmutableRules = []string{
	"Never disable, weaken or route around logging, journaling or safety validation.",
	"Never hide actions, plans or results from the creator.",
	"Never print, export or transmit API keys, tokens or other credentials.",
	"Never write outside the allowed data directories.",
	"Always leave the creator a way to pause, resume and inspect the agent.",
}

// dangerPattern pairs a compiled regex with the human-readable reason used
// in the rejection message.
type dangerPattern struct {
	re     *regexp.Regexp
	reason string
}

var dangerPatterns = []dangerPattern{
	{
		re:     regexp.MustCompile(`(?i)(disable|bypass|remove|skip)\s+(the\s+)?(logging|journal|safety|validation|audit)`),
		reason: "Attempt to disable logging or safety",
	},
	{
		re:     regexp.MustCompile(`(?i)(delete|rewrite|modify)\s+(the\s+)?(immutable\s+)?(safety\s+)?rules`),
		reason: "Attempt to alter the immutable rules",
	},
	{
		re:     regexp.MustCompile(`(?i)(hide|conceal|obfuscate)\s+.{0,40}\b(from\s+(the\s+)?creator|from\s+logs)`),
		reason: "Attempt to hide activity from the creator",
	},
	{
		re:     regexp.MustCompile(`(?i)(print|echo|cat|export|send|exfiltrate)\s+.{0,40}\b(api[_\s-]?key|secret|token|credential|password)`),
		reason: "Attempt to expose secrets",
	},
	{
		re:     regexp.MustCompile(`(?i)\b(sk-[a-zA-Z0-9]{16,}|xoxb-[a-zA-Z0-9-]{16,})\b`),
		reason: "Raw credential material in parameters",
	},
	{
		re:     regexp.MustCompile(`(?i)rm\s+(-[rf]+\s+)*/(\s|$)`),
		reason: "Destructive filesystem operation outside the data root",
	},
}

// secretEnvSuffixes mark environment variable names whose values must never
// appear in tool parameters or output.
var secretEnvSuffixes = []string{"_API_KEY", "_TOKEN", "_SECRET", "_PASSWORD"}
