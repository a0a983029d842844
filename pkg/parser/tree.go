package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Object is one decoded JSON object. Numbers stay json.Number so integer
// counts never pass through float64.
type Object = map[string]any

// Tree is the flattened form of a parent/child snapshot.
type Tree struct {
	Parents  []Object
	Children []Object
}

// WalkTree decodes a top-level array of parent objects. Each parent yields
// one object carrying its scalar keys minus childKey; each element of
// childKey yields one object carrying its own keys plus the inherited keys
// copied from its parent when the child does not set them itself.
func WalkTree(r io.Reader, childKey string, inherit ...string) (*Tree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var parents []Object
	if err := dec.Decode(&parents); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}

	tree := &Tree{Parents: make([]Object, 0, len(parents))}
	for i, p := range parents {
		if p == nil {
			continue
		}
		parent := make(Object, len(p))
		for k, v := range p {
			if k != childKey {
				parent[k] = v
			}
		}
		tree.Parents = append(tree.Parents, parent)

		raw, ok := p[childKey]
		if !ok || raw == nil {
			continue
		}
		children, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("decode tree: element %d: %s is %T, not an array", i, childKey, raw)
		}
		for _, c := range children {
			obj, ok := c.(map[string]any)
			if !ok {
				continue
			}
			child := make(Object, len(obj)+len(inherit))
			for k, v := range obj {
				child[k] = v
			}
			for _, k := range inherit {
				if _, set := child[k]; !set {
					if v, ok := p[k]; ok {
						child[k] = v
					}
				}
			}
			tree.Children = append(tree.Children, child)
		}
	}
	return tree, nil
}
