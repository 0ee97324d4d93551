package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the canonical serialization used by Encode.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const (
	fieldLabel = "table"
	fieldQuery = "query"
)

// Parse builds a catalog from its YAML (or JSON) form. Category and entry
// order is taken from the document.
func Parse(data []byte) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Kind == 0 {
		return nil, &MalformedError{Line: 1, Index: -1, Reason: "empty document"}
	}

	c := &Catalog{}
	if err := c.UnmarshalYAML(&doc); err != nil {
		return nil, err
	}
	return c, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. It replaces the receiver's
// contents and rejects anything that is not category -> [{table, query}].
func (c *Catalog) UnmarshalYAML(node *yaml.Node) error {
	root := resolve(node)
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return &MalformedError{Line: root.Line, Index: -1, Reason: "empty document"}
		}
		root = resolve(root.Content[0])
	}
	if root.Kind != yaml.MappingNode {
		return &MalformedError{Line: root.Line, Index: -1, Reason: "catalog must be a mapping of category name to entries"}
	}

	categories := make([]Category, 0, len(root.Content)/2)
	index := make(map[string]int, len(root.Content)/2)

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := resolve(root.Content[i]), resolve(root.Content[i+1])

		if key.Kind != yaml.ScalarNode || key.Tag == "!!null" || strings.TrimSpace(key.Value) == "" {
			return &MalformedError{Line: key.Line, Index: -1, Reason: "category name must be a non-empty string"}
		}
		name := key.Value
		if _, dup := index[name]; dup {
			return &MalformedError{Line: key.Line, Category: name, Index: -1, Reason: "duplicate category"}
		}

		reports, err := decodeReports(name, value)
		if err != nil {
			return err
		}

		index[name] = len(categories)
		categories = append(categories, Category{Name: name, Reports: reports})
	}

	c.categories = categories
	c.index = index
	return nil
}

func decodeReports(category string, node *yaml.Node) ([]Report, error) {
	switch {
	case node.Kind == yaml.ScalarNode && node.Tag == "!!null":
		return []Report{}, nil
	case node.Kind != yaml.SequenceNode:
		return nil, &MalformedError{Line: node.Line, Category: category, Index: -1, Reason: "entries must be a list"}
	}

	reports := make([]Report, 0, len(node.Content))
	for i, item := range node.Content {
		r, err := decodeReport(category, i, resolve(item))
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func decodeReport(category string, index int, node *yaml.Node) (Report, error) {
	malformed := func(line int, reason string) error {
		return &MalformedError{Line: line, Category: category, Index: index, Reason: reason}
	}

	if node.Kind != yaml.MappingNode {
		return Report{}, malformed(node.Line, "entry must be a mapping with table and query")
	}

	var r Report
	seen := make(map[string]bool, 2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := resolve(node.Content[i]), resolve(node.Content[i+1])
		if key.Kind != yaml.ScalarNode {
			return Report{}, malformed(key.Line, "field name must be a string")
		}
		field := key.Value
		if field != fieldLabel && field != fieldQuery {
			return Report{}, malformed(key.Line, fmt.Sprintf("unknown field %q", field))
		}
		if seen[field] {
			return Report{}, malformed(key.Line, fmt.Sprintf("duplicate field %q", field))
		}
		seen[field] = true

		if value.Kind != yaml.ScalarNode || value.Tag == "!!null" {
			return Report{}, malformed(value.Line, fmt.Sprintf("field %q must be a string, use \"\" for a placeholder", field))
		}
		if field == fieldLabel {
			r.Label = value.Value
		} else {
			r.Query = value.Value
		}
	}

	for _, field := range []string{fieldLabel, fieldQuery} {
		if !seen[field] {
			return Report{}, malformed(node.Line, fmt.Sprintf("missing field %q", field))
		}
	}
	return r, nil
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

// MarshalYAML implements yaml.Marshaler, emitting the canonical ordered form.
func (c *Catalog) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, cat := range c.categories {
		entries := &yaml.Node{Kind: yaml.SequenceNode}
		if len(cat.Reports) == 0 {
			entries.Style = yaml.FlowStyle
		}
		for _, r := range cat.Reports {
			entries.Content = append(entries.Content, &yaml.Node{
				Kind: yaml.MappingNode,
				Content: []*yaml.Node{
					stringNode(fieldLabel), stringNode(r.Label),
					stringNode(fieldQuery), stringNode(r.Query),
				},
			})
		}
		root.Content = append(root.Content, stringNode(cat.Name), entries)
	}
	return root, nil
}

func stringNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	switch {
	case !strings.Contains(s, "\n"):
	case strings.ContainsAny(s[:1], " \t\n") || strings.Contains(s, "\r"):
		// a block scalar drops leading breaks and indentation on reload
		n.Style = yaml.DoubleQuotedStyle
	default:
		n.Style = yaml.LiteralStyle
	}
	return n
}

// MarshalJSON implements json.Marshaler. Categories keep catalog order and
// empty categories encode as [].
func (c *Catalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c.categories {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := marshalJSONValue(cat.Name)
		if err != nil {
			return nil, err
		}
		reports := cat.Reports
		if reports == nil {
			reports = []Report{}
		}
		entries, err := marshalJSONValue(reports)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(entries)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalJSONValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode writes the catalog in its canonical form. Parse reads either format
// back into an identical catalog.
func (c *Catalog) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		data, err := c.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}
		out.WriteByte('\n')
		_, err = out.WriteTo(w)
		return err
	default:
		return fmt.Errorf("unsupported catalog format: %q", format)
	}
}
