package chain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/archonhq/archon/errors"
)

// Strict substitution grammar: {{name}} placeholders only. A placeholder
// resolves through the step's input mapping first (prior step outputs or
// dot-paths into the input bag), then the raw input bag. Unresolvable
// placeholders are left in place so the model sees them verbatim.

var strictPlaceholder = regexp.MustCompile(`\{\{(\w+)\}\}`)
var stepOutputRef = regexp.MustCompile(`^prompt_(.+)\.output$`)

// ResolveStrict substitutes {{name}} placeholders in template. References to
// steps that have not executed yet are left unresolved.
func ResolveStrict(template string, inputs map[string]interface{}, previousOutputs map[string]string, mapping map[string]string) string {
	resolved, _ := resolveStrict(template, inputs, previousOutputs, mapping, false)
	return resolved
}

// ResolveStrictChecked is ResolveStrict except a mapped reference to a step
// whose output is absent is an error instead of being left in place.
func ResolveStrictChecked(template string, inputs map[string]interface{}, previousOutputs map[string]string, mapping map[string]string) (string, error) {
	return resolveStrict(template, inputs, previousOutputs, mapping, true)
}

func resolveStrict(template string, inputs map[string]interface{}, previousOutputs map[string]string, mapping map[string]string, checked bool) (string, error) {
	var resolveErr error
	resolved := strictPlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		if resolveErr != nil {
			return match
		}
		name := strictPlaceholder.FindStringSubmatch(match)[1]

		if target, ok := mapping[name]; ok {
			if ref := stepOutputRef.FindStringSubmatch(target); ref != nil {
				stepID := ref[1]
				if output, ok := previousOutputs[stepID]; ok {
					return output
				}
				if checked {
					resolveErr = errors.NewInvalidRequestError(
						"variable %s references step %s which has not executed", name, stepID)
				}
				return match
			}
			if value, ok := lookupPath(inputs, target); ok {
				return valueToString(value)
			}
			// mapped path did not resolve, fall through to the raw bag
		}

		if value, ok := inputs[name]; ok && value != nil {
			return valueToString(value)
		}
		return match
	})
	return resolved, resolveErr
}

// lookupPath walks a dot-separated path through nested maps in the input
// bag. A leading "inputs." segment is stripped.
func lookupPath(inputs map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	if len(segments) > 1 && segments[0] == "inputs" {
		segments = segments[1:]
	}
	var current interface{} = inputs
	for _, segment := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// String renders an input-bag value the way substitution does: strings
// verbatim, scalars formatted, everything else JSON encoded.
func String(value interface{}) string {
	return valueToString(value)
}

func valueToString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
