package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Preset is a named (transform, args...) pair. Arguments stay strings; the
// transform decides how to read them.
type Preset struct {
	Transform string
	Args      []string
}

// UnmarshalYAML reads a preset written as a flow sequence: [fitCrop, 32, 32].
func (p *Preset) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: preset must be a sequence", node.Line)
	}
	if len(node.Content) == 0 {
		return fmt.Errorf("line %d: preset is empty", node.Line)
	}
	for i, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: preset items must be scalars", item.Line)
		}
		if i == 0 {
			p.Transform = item.Value
			continue
		}
		p.Args = append(p.Args, item.Value)
	}
	return nil
}

// FieldSet maps a media attribute (file, mime_type, size, ...) to the key it
// is copied to on the owner projection.
type FieldSet map[string]string

// OwnerFields maps a field name on an owner kind to its FieldSet.
type OwnerFields map[string]FieldSet

// UnmarshalYAML accepts either a list of field names, which copy only the
// file path under the field's own name, or a full mapping.
func (o *OwnerFields) UnmarshalYAML(node *yaml.Node) error {
	out := OwnerFields{}
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		for _, name := range names {
			out[name] = FieldSet{"file": name}
		}
	case yaml.MappingNode:
		raw := map[string]FieldSet{}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		for name, set := range raw {
			if len(set) == 0 {
				set = FieldSet{"file": name}
			}
			out[name] = set
		}
	default:
		return fmt.Errorf("line %d: owner fields must be a list or a mapping", node.Line)
	}
	*o = out
	return nil
}

// Document is the YAML media document: presets and the owner kinds that
// media can be linked to.
type Document struct {
	Presets map[string]Preset      `yaml:"presets"`
	Owners  map[string]OwnerFields `yaml:"owners"`
}

// DefaultDocument returns the built-in presets and no owner kinds besides a
// generic "User" avatar.
func DefaultDocument() Document {
	return Document{
		Presets: map[string]Preset{
			"tiny":    {Transform: "fitCrop", Args: []string{"20", "20"}},
			"icon":    {Transform: "fitCrop", Args: []string{"32", "32"}},
			"thumb":   {Transform: "fitInside", Args: []string{"50", "200"}},
			"small":   {Transform: "fitInside", Args: []string{"150", "300"}},
			"medium":  {Transform: "fitInside", Args: []string{"250", "500"}},
			"large":   {Transform: "fitInside", Args: []string{"600", "600"}},
			"default": {Transform: "fitInside", Args: []string{"600", "600"}},
		},
		Owners: map[string]OwnerFields{
			"User": {
				"avatar": FieldSet{"file": "avatar", "mime_type": "avatar_mime_type", "size": "avatar_size"},
			},
		},
	}
}

// LoadDocument reads a media document. Sections missing from the file keep
// their defaults.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read media config: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse media config %s: %w", path, err)
	}
	def := DefaultDocument()
	if doc.Presets == nil {
		doc.Presets = def.Presets
	}
	if doc.Owners == nil {
		doc.Owners = def.Owners
	}
	return doc, nil
}

// PresetNames lists presets in a stable order.
func (m MediaConfig) PresetNames() []string {
	names := make([]string, 0, len(m.Presets))
	for name := range m.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
