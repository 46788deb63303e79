package chain

import (
	"regexp"

	"go.uber.org/zap"
)

// Lenient substitution grammar used by the queue worker: both {{name}} and
// {name} forms over a flat variable map. Names are restricted to
// [a-zA-Z0-9_-]; anything else is left in place and logged.

var lenientDouble = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
var lenientSingle = regexp.MustCompile(`\{([^{}]+)\}`)
var lenientName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// LenientResolver substitutes flat variables into worker step templates
type LenientResolver struct {
	log *zap.SugaredLogger
}

func NewLenientResolver(log *zap.SugaredLogger) *LenientResolver {
	return &LenientResolver{log: log}
}

// Resolve replaces {{name}} and {name} placeholders with values from vars.
// Placeholders with unknown names are left untouched.
func (r *LenientResolver) Resolve(template string, vars map[string]string) string {
	replace := func(pattern *regexp.Regexp, input string) string {
		return pattern.ReplaceAllStringFunc(input, func(match string) string {
			name := pattern.FindStringSubmatch(match)[1]
			if !lenientName.MatchString(name) {
				if r.log != nil {
					r.log.Warnw("skipping invalid variable name in template", "name", name)
				}
				return match
			}
			if value, ok := vars[name]; ok {
				return value
			}
			return match
		})
	}
	resolved := replace(lenientDouble, template)
	return replace(lenientSingle, resolved)
}
