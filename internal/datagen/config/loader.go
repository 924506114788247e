package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const importsKey = "imports"

// Loader reads generator documents relative to a base directory. Resolved
// documents are cached per path for the lifetime of the loader.
type Loader struct {
	baseDir string

	mu    sync.Mutex
	cache map[string]*yaml.Node
}

func NewLoader(baseDir string) *Loader {
	if baseDir == "" {
		baseDir = "."
	}
	return &Loader{baseDir: baseDir, cache: make(map[string]*yaml.Node)}
}

// Load resolves imports and directives for path and decodes the result on
// top of the documented defaults.
func Load(path, baseDir string) (*Document, error) {
	return NewLoader(baseDir).Load(path)
}

func (l *Loader) Load(path string) (*Document, error) {
	root, err := l.resolve(filepath.Join(l.baseDir, path))
	if err != nil {
		return nil, err
	}

	doc := Default()
	if err := root.Decode(doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, fmt.Sprintf("decode generator config %s", path))
	}
	doc.applyDefaults()

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (l *Loader) resolve(fullPath string) (*yaml.Node, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.cache[fullPath]; ok {
		return cloneNode(cached), nil
	}

	root, err := readMapping(fullPath)
	if err != nil {
		return nil, err
	}

	if idx := mappingIndex(root, importsKey); idx >= 0 {
		var imports []string
		if err := root.Content[idx+1].Decode(&imports); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, fmt.Sprintf("%s: imports must be a list of paths", fullPath))
		}
		root.Content = append(root.Content[:idx], root.Content[idx+2:]...)

		var merged *yaml.Node
		for _, imp := range imports {
			imported, err := readMapping(filepath.Join(l.baseDir, imp))
			if err != nil {
				return nil, err
			}
			merged = mergeNodes(merged, imported)
		}
		root = mergeNodes(merged, root)
	}

	applyDirectives(root)

	l.cache[fullPath] = cloneNode(root)
	return root, nil
}

func readMapping(path string) (*yaml.Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, fmt.Sprintf("read generator config %s", path))
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, fmt.Sprintf("parse generator config %s", path))
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, pkgerrors.Newf(pkgerrors.CodeConfig, "generator config %s: top level must be a mapping", path)
	}
	return root, nil
}

// mergeNodes merges src into dst. Mappings merge recursively, sequences
// append the src items not already present in dst, anything else is
// replaced by src. Neither input is modified.
func mergeNodes(dst, src *yaml.Node) *yaml.Node {
	if dst == nil {
		return cloneNode(src)
	}
	if src == nil {
		return cloneNode(dst)
	}

	switch {
	case dst.Kind == yaml.MappingNode && src.Kind == yaml.MappingNode:
		out := cloneNode(dst)
		for i := 0; i+1 < len(src.Content); i += 2 {
			key, value := src.Content[i], src.Content[i+1]
			if idx := mappingIndex(out, key.Value); idx >= 0 {
				out.Content[idx+1] = mergeNodes(out.Content[idx+1], value)
				continue
			}
			out.Content = append(out.Content, cloneNode(key), cloneNode(value))
		}
		return out
	case dst.Kind == yaml.SequenceNode && src.Kind == yaml.SequenceNode:
		out := cloneNode(dst)
		for _, item := range src.Content {
			if !containsNode(dst.Content, item) {
				out.Content = append(out.Content, cloneNode(item))
			}
		}
		return out
	default:
		return cloneNode(src)
	}
}

func applyDirectives(root *yaml.Node) {
	if website := mappingValue(root, "website"); website != nil && website.Kind == yaml.MappingNode {
		common := mappingValue(website, "common_event_types")
		additional := mappingValue(website, "additional_event_types")
		if common != nil && additional != nil {
			mappingSet(website, "event_types", concatSequences(common, additional))
			mappingDelete(website, "common_event_types")
			mappingDelete(website, "additional_event_types")
		}

		commonRefs := mappingValue(website, "common_referrers")
		additionalRefs := mappingValue(website, "additional_referrers")
		if commonRefs != nil && additionalRefs != nil {
			flattened := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			if commonRefs.Kind == yaml.MappingNode {
				for i := 1; i < len(commonRefs.Content); i += 2 {
					if group := commonRefs.Content[i]; group.Kind == yaml.SequenceNode {
						flattened.Content = append(flattened.Content, group.Content...)
					}
				}
			}
			mappingSet(website, "referrer_urls", concatSequences(flattened, additionalRefs))
			mappingDelete(website, "common_referrers")
			mappingDelete(website, "additional_referrers")
		}
	}

	if providers := mappingValue(root, "data_providers"); providers != nil && providers.Kind == yaml.MappingNode {
		structure := mappingValue(providers, "segment_structure")
		common := mappingValue(providers, "common_segments")
		if structure != nil && common != nil {
			mappingSet(providers, "segment_structure", mergeNodes(common, structure))
			mappingDelete(providers, "common_segments")
		}
	}

	if crm := mappingValue(root, "crm"); crm != nil && crm.Kind == yaml.MappingNode {
		if subset := mappingValue(crm, "countries_subset"); subset != nil {
			mappingSet(crm, "countries", subset)
			mappingDelete(crm, "countries_subset")
		}
	}

	if sales := mappingValue(root, "sales"); sales != nil && sales.Kind == yaml.MappingNode {
		if override := mappingValue(sales, "currencies_override"); override != nil {
			mappingSet(sales, "currencies", override)
			mappingDelete(sales, "currencies_override")
		}
	}
}

func concatSequences(a, b *yaml.Node) *yaml.Node {
	out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, n := range []*yaml.Node{a, b} {
		if n != nil && n.Kind == yaml.SequenceNode {
			for _, item := range n.Content {
				out.Content = append(out.Content, cloneNode(item))
			}
		}
	}
	return out
}

func mappingIndex(node *yaml.Node, key string) int {
	if node == nil || node.Kind != yaml.MappingNode {
		return -1
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if idx := mappingIndex(node, key); idx >= 0 {
		return node.Content[idx+1]
	}
	return nil
}

func mappingSet(node *yaml.Node, key string, value *yaml.Node) {
	if idx := mappingIndex(node, key); idx >= 0 {
		node.Content[idx+1] = value
		return
	}
	node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

func mappingDelete(node *yaml.Node, key string) {
	if idx := mappingIndex(node, key); idx >= 0 {
		node.Content = append(node.Content[:idx], node.Content[idx+2:]...)
	}
}

func containsNode(items []*yaml.Node, candidate *yaml.Node) bool {
	var want any
	if err := candidate.Decode(&want); err != nil {
		return false
	}
	for _, item := range items {
		var got any
		if err := item.Decode(&got); err != nil {
			continue
		}
		if reflect.DeepEqual(got, want) {
			return true
		}
	}
	return false
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	out := *n
	if n.Content != nil {
		out.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = cloneNode(child)
		}
	}
	return &out
}
