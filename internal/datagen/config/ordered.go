package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Ordered is a string-keyed mapping that remembers YAML document order.
// Generators iterate categorical tables in that order so a fixed seed
// always yields the same rows.
type Ordered[V any] struct {
	keys   []string
	values map[string]V
}

// Weights maps a categorical label to its probability.
type Weights = Ordered[float64]

// Set inserts or replaces key. New keys are appended to the iteration order.
func (o *Ordered[V]) Set(key string, value V) {
	if o.values == nil {
		o.values = make(map[string]V)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o Ordered[V]) Get(key string) (V, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o Ordered[V]) Len() int {
	return len(o.keys)
}

func (o Ordered[V]) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Values returns the values in key order.
func (o Ordered[V]) Values() []V {
	out := make([]V, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.values[k])
	}
	return out
}

func (o *Ordered[V]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	o.keys = nil
	o.values = nil
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var value V
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		o.Set(key, value)
	}
	return nil
}
