// Package document holds the rich-text document tree produced by the
// admin panel's WYSIWYG editor and the placeholder rewriter that swaps
// locally-staged image references for their uploaded URLs.
package document

import "encoding/json"

// Node represents a node in the editor's JSON document tree.
type Node struct {
	Type    string         `json:"type,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark represents a text formatting mark (bold, link, ...).
type Mark struct {
	Type  string         `json:"type,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Parse decodes a JSON document tree. An empty payload yields a nil node.
func Parse(data []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Encode serializes a document tree. A nil node encodes to nil.
func (n *Node) Encode() ([]byte, error) {
	if n == nil {
		return nil, nil
	}
	return json.Marshal(n)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	copied := cloneNode(*n)
	return &copied
}

func cloneNode(n Node) Node {
	out := Node{Type: n.Type, Text: n.Text}
	if n.Attrs != nil {
		out.Attrs = make(map[string]any, len(n.Attrs))
		for k, v := range n.Attrs {
			out.Attrs[k] = v
		}
	}
	if n.Marks != nil {
		out.Marks = make([]Mark, len(n.Marks))
		for i, m := range n.Marks {
			out.Marks[i] = Mark{Type: m.Type}
			if m.Attrs != nil {
				out.Marks[i].Attrs = make(map[string]any, len(m.Attrs))
				for k, v := range m.Attrs {
					out.Marks[i].Attrs[k] = v
				}
			}
		}
	}
	if n.Content != nil {
		out.Content = make([]Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = cloneNode(child)
		}
	}
	return out
}
