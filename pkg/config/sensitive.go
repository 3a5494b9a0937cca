package config

import (
	"encoding/json"
	"fmt"
)

// SensitiveString holds secrets (API keys, tokens). The raw value is only
// reachable through String(); every serialization path redacts it so a
// dumped config never leaks credentials.
type SensitiveString string

const redactedPlaceholder = "[REDACTED]"

// String returns the raw secret value.
func (s SensitiveString) String() string {
	return string(s)
}

// IsSet reports whether a value is present.
func (s SensitiveString) IsSet() bool {
	return s != ""
}

// MarshalJSON always emits the redaction placeholder.
func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(redactedPlaceholder)
}

// UnmarshalJSON accepts the raw value from config sources.
func (s *SensitiveString) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: unmarshal sensitive string: %w", err)
	}
	*s = SensitiveString(raw)
	return nil
}

// Format redacts under %v/%s/%q so fmt-based logging cannot leak the value.
func (s SensitiveString) Format(f fmt.State, verb rune) {
	switch verb {
	case 'q':
		fmt.Fprintf(f, "%q", redactedPlaceholder)
	default:
		fmt.Fprint(f, redactedPlaceholder)
	}
}
