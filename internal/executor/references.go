package executor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pitwall-ai/pitwall"
)

// refPattern matches parameter references of the form ${call_id} or
// ${call_id.field}. A reference pulls the named call's payload (or one
// field of a map payload) into the dependent call's parameters.
var refPattern = regexp.MustCompile(`^\$\{([a-zA-Z0-9_\-]+)(?:\.([a-zA-Z0-9_\-]+))?\}$`)

// resolveParameters substitutes upstream-result references in a call's
// parameters. Group ordering guarantees referenced calls have already
// finished; a reference to a failed or unknown call is an error so the
// dependent call fails cleanly instead of running on garbage.
func resolveParameters(params map[string]interface{}, prior map[string]pitwall.ToolResult) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(params))
	for key, value := range params {
		s, isString := value.(string)
		if !isString || !strings.HasPrefix(s, "${") {
			resolved[key] = value
			continue
		}

		m := refPattern.FindStringSubmatch(s)
		if m == nil {
			return nil, fmt.Errorf("malformed result reference '%s' in parameter '%s'", s, key)
		}
		callID, field := m[1], m[2]

		result, ok := prior[callID]
		if !ok {
			return nil, fmt.Errorf("parameter '%s' references unknown call '%s'", key, callID)
		}
		if result.Failed() {
			return nil, fmt.Errorf("parameter '%s' references failed call '%s': %s", key, callID, result.Err.Message)
		}

		if field == "" {
			resolved[key] = result.Payload
			continue
		}
		payload, ok := result.Payload.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("parameter '%s' references field '%s' of call '%s', whose payload is not a map", key, field, callID)
		}
		fieldValue, ok := payload[field]
		if !ok {
			return nil, fmt.Errorf("call '%s' payload has no field '%s' (parameter '%s')", callID, field, key)
		}
		resolved[key] = fieldValue
	}
	return resolved, nil
}
