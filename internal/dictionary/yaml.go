package dictionary

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

func readYAML(r io.Reader) ([]roster.Entry, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("invalid YAML: expected a mapping at line %d", root.Line)
	}

	var (
		direct  []roster.Entry
		hasMeta bool
	)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch {
		case key.Value == wrapperKey && val.Kind == yaml.MappingNode:
			return yamlPairs(val)
		case key.Value == metaKey:
			hasMeta = true
		default:
			desc, err := yamlScalar(key.Value, val)
			if err != nil {
				return nil, err
			}
			direct = append(direct, roster.Entry{Code: key.Value, Description: desc})
		}
	}
	if hasMeta {
		return nil, errNoMappings
	}
	return direct, nil
}

func yamlPairs(m *yaml.Node) ([]roster.Entry, error) {
	out := make([]roster.Entry, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i], m.Content[i+1]
		desc, err := yamlScalar(key.Value, val)
		if err != nil {
			return nil, err
		}
		out = append(out, roster.Entry{Code: key.Value, Description: desc})
	}
	return out, nil
}

func yamlScalar(code string, n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("code %q: description must be a scalar (line %d)", code, n.Line)
	}
	if n.Tag == "!!null" {
		return "", nil
	}
	return n.Value, nil
}

func writeYAML(w io.Writer, entries []roster.Entry) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range entries {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Code},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Description},
		)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}
