package capability

import "strings"

// inferFunc derives an operation name from a tool's parameter payload.
// Returning "" means no operation could be inferred.
type inferFunc func(params map[string]any) string

// operationRules maps tool names to their operation-inference rule.
// Adding support for a new tool means adding one entry here; tools without
// an entry never yield an operation and are governed only by the blocked
// list.
var operationRules = map[string]inferFunc{
	"exec":        commandWord("command"),
	"read_file":   constant("read"),
	"write_file":  constant("write"),
	"edit_file":   constant("write"),
	"apply_patch": constant("write"),
	"delete_file": constant("delete"),
	"web_search":  constant("search"),
	"web_fetch":   constant("fetch"),
	"cron":        actionField(""),
	"goal":        actionField(""),
	"message":     actionField("send"),
}

// InferOperation derives the operation for a tool call. Unknown tools and
// unrecognized parameter shapes both yield "".
func InferOperation(tool string, params map[string]any) string {
	rule, ok := operationRules[tool]
	if !ok {
		return ""
	}
	return rule(params)
}

// commandWord extracts the first whitespace-delimited token of a string
// parameter — the command name of a shell invocation.
func commandWord(key string) inferFunc {
	return func(params map[string]any) string {
		cmd, _ := params[key].(string)
		fields := strings.Fields(cmd)
		if len(fields) == 0 {
			return ""
		}
		return fields[0]
	}
}

// constant returns a fixed operation regardless of parameters.
func constant(op string) inferFunc {
	return func(map[string]any) string { return op }
}

// actionField reads the "action" parameter, falling back to def when the
// field is missing or not a string.
func actionField(def string) inferFunc {
	return func(params map[string]any) string {
		if action, ok := params["action"].(string); ok && action != "" {
			return action
		}
		return def
	}
}
