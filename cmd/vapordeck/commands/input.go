package commands

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseSetFlags turns repeated key=value flags into a document. Values
// are parsed as YAML scalars so integers and booleans keep their type,
// and dotted keys build nested maps:
//
//	--set region=fr-par --set auto_stop.enabled=true
func parseSetFlags(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	doc := map[string]any{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}

		cursor := doc
		parts := strings.Split(key, ".")
		for i, part := range parts {
			if part == "" {
				return nil, fmt.Errorf("invalid --set key %q", key)
			}
			if i == len(parts)-1 {
				cursor[part] = value
				break
			}
			next, ok := cursor[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				cursor[part] = next
			}
			cursor = next
		}
	}
	return doc, nil
}
