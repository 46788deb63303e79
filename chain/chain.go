// Package chain holds chain definitions (architects and their prompt steps),
// their persistence, ownership-checked loading, and the two variable
// substitution grammars used when resolving step templates.
package chain

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/archonhq/archon/errors"
)

// Architect is an ordered, linear sequence of prompt steps owned by one user
type Architect struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Prompt is one step within an architect: a template, a target model, and
// optional knowledge/tool configuration.
//
// InputMapping maps a template variable name to either a reference to a
// prior step's output ("prompt_<stepID>.output") or a dot-path into the
// input bag ("inputs.user.name", or a bare path relative to inputs).
type Prompt struct {
	ID             string            `json:"id"`
	ArchitectID    string            `json:"architect_id"`
	Name           string            `json:"name"`
	Content        string            `json:"content"`
	SystemContext  string            `json:"system_context,omitempty"`
	ModelID        string            `json:"model_id,omitempty"`
	Position       int               `json:"position"`
	RepositoryIDs  []int64           `json:"repository_ids,omitempty"`
	EnabledTools   []string          `json:"enabled_tools,omitempty"`
	InputMapping   map[string]string `json:"input_mapping,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Timeout returns the step's configured timeout as a duration, 0 if none
func (p *Prompt) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug normalizes a step name for use in worker variable names:
// "Draft Summary" -> "draft_summary".
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugPattern.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// marshalJSONColumn encodes an optional JSON column, returning "" for empty values
func marshalJSONColumn(v interface{}) (string, error) {
	switch val := v.(type) {
	case []int64:
		if len(val) == 0 {
			return "", nil
		}
	case []string:
		if len(val) == 0 {
			return "", nil
		}
	case map[string]string:
		if len(val) == 0 {
			return "", nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON column")
	}
	return string(data), nil
}

// unmarshalJSONColumn decodes an optional JSON column into target, treating "" as empty
func unmarshalJSONColumn(data string, target interface{}) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), target); err != nil {
		return errors.Wrap(err, "failed to unmarshal JSON column")
	}
	return nil
}
