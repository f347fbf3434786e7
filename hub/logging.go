package hub

import "encoding/json"

// summarizeArgs renders call arguments for logs. values are logged before
// env substitution so secrets stay masked, and long payloads are truncated.
func summarizeArgs(args any) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "<marshal error>"
	}
	if len(data) > 500 {
		return string(data[:500]) + "..."
	}
	return string(data)
}
