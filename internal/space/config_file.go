package space

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BuildFromConfigFile extends sp with dimensions declared as annotated
// leaves of an arbitrary YAML document, e.g. `learning_rate:
// "orion~loguniform(1e-5,1)"`. A leaf value of the form "orion~PRIOR" is
// replaced with a config-path placeholder in the returned overlay so the
// Consumer can rehydrate a concrete config file per trial.
func (b *Builder) BuildFromConfigFile(sp *Space, path string) (*ConfigOverlay, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ErrInvalidDefinition{Token: path, Reason: "cannot read config file", Cause: err}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ErrInvalidDefinition{Token: path, Reason: "invalid yaml", Cause: err}
	}

	overlay := &ConfigOverlay{leaves: map[string]string{}}
	if len(doc.Content) == 0 {
		return overlay, nil
	}
	if err := walkYAML(doc.Content[0], "", sp, overlay); err != nil {
		return nil, err
	}
	return overlay, nil
}

// ConfigOverlay maps a dotted config path to the dimension name that feeds
// it, discovered while scanning an annotated configuration file.
type ConfigOverlay struct {
	leaves map[string]string // dotted path -> dimension name
}

// DimensionFor returns the dimension name bound to the given dotted config
// path, if the path was declared as an annotation.
func (c *ConfigOverlay) DimensionFor(path string) (string, bool) {
	name, ok := c.leaves[path]
	return name, ok
}

// Render materializes a concrete config document: the original YAML tree
// with every annotated leaf replaced by the trial's value for its bound
// dimension.
func (c *ConfigOverlay) Render(path string, params []Param) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	byName := make(map[string]Value, len(params))
	for _, p := range params {
		byName[p.Name] = p.Value
	}
	if len(doc.Content) > 0 {
		substituteYAML(doc.Content[0], "", c, byName)
	}
	return yaml.Marshal(&doc)
}

const annotationPrefix = "orion~"

func walkYAML(node *yaml.Node, prefix string, sp *Space, overlay *ConfigOverlay) error {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			val := node.Content[i+1]
			childPrefix := key
			if prefix != "" {
				childPrefix = prefix + "." + key
			}
			if val.Kind == yaml.ScalarNode && strings.HasPrefix(val.Value, annotationPrefix) {
				decl := strings.TrimPrefix(val.Value, annotationPrefix)
				d, err := ParseDimension(key + "~" + decl)
				if err != nil {
					return err
				}
				if _, exists := sp.Get(d.Name()); !exists {
					if err := sp.Add(d); err != nil {
						return err
					}
				}
				overlay.leaves[childPrefix] = d.Name()
				continue
			}
			if err := walkYAML(val, childPrefix, sp, overlay); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			childPrefix := fmt.Sprintf("%s[%d]", prefix, i)
			if err := walkYAML(item, childPrefix, sp, overlay); err != nil {
				return err
			}
		}
	}
	return nil
}

func substituteYAML(node *yaml.Node, prefix string, overlay *ConfigOverlay, byName map[string]Value) {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			val := node.Content[i+1]
			childPrefix := key
			if prefix != "" {
				childPrefix = prefix + "." + key
			}
			if name, ok := overlay.DimensionFor(childPrefix); ok {
				if v, ok := byName[name]; ok {
					val.Kind = yaml.ScalarNode
					val.Tag = ""
					val.Value = v.String()
					val.Content = nil
				}
				continue
			}
			substituteYAML(val, childPrefix, overlay, byName)
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			substituteYAML(item, fmt.Sprintf("%s[%d]", prefix, i), overlay, byName)
		}
	}
}
