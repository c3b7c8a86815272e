package main

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

func checkFormat(format string) error {
	switch format {
	case "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q: use json or yaml", format)
	}
}

// formatOutput renders compiled JSON text in format, newline terminated.
func formatOutput(result, format string) (string, error) {
	switch format {
	case "yaml":
		return toYAML(result)
	case "json":
		return result + "\n", nil
	default:
		return "", checkFormat(format)
	}
}

// toYAML re-encodes JSON text as block-style YAML. JSON is valid YAML, so
// the node tree keeps key order and scalar tags; only styles are reset.
func toYAML(jsonText string) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(jsonText), &doc); err != nil {
		return "", fmt.Errorf("parse result: %w", err)
	}
	resetStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	return buf.String(), nil
}

func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}
