package document

const imageNodeType = "image"

// StagedRef correlates a staged image's ephemeral preview handle with its
// stable placeholder token. Image nodes carry the preview handle in their
// src attribute while the author is composing; the placeholder token is
// what the upload batch resolves to a final URL.
type StagedRef struct {
	PreviewHandle string
	Placeholder   string
}

// Unresolved reports a staged image reference that could not be rewritten
// because its placeholder has no entry in the placeholder map (upload still
// pending or failed).
type Unresolved struct {
	PreviewHandle string
	Placeholder   string
}

// Rewrite walks the document tree and replaces the src of every image node
// that references a staged preview handle with the final URL mapped by that
// image's placeholder token. The input tree is never mutated; the result is
// a full rebuild even when nothing matches. Image nodes whose src is not a
// known preview handle (already-remote URLs, hand-typed paths) pass through
// untouched. Staged references with no mapped URL are left in place and
// reported, never dropped.
func Rewrite(doc *Node, placeholders map[string]string, staged []StagedRef) (*Node, []Unresolved) {
	if doc == nil {
		return nil, nil
	}

	byHandle := make(map[string]string, len(staged))
	for _, ref := range staged {
		if ref.PreviewHandle != "" {
			byHandle[ref.PreviewHandle] = ref.Placeholder
		}
	}

	seen := make(map[string]struct{})
	var unresolved []Unresolved
	rewritten := rewriteNode(*doc, placeholders, byHandle, seen, &unresolved)
	return &rewritten, unresolved
}

func rewriteNode(n Node, placeholders, byHandle map[string]string, seen map[string]struct{}, unresolved *[]Unresolved) Node {
	out := cloneNode(n)

	if n.Type == imageNodeType && out.Attrs != nil {
		if src, ok := out.Attrs["src"].(string); ok {
			if placeholder, local := byHandle[src]; local {
				if url, resolved := placeholders[placeholder]; resolved {
					out.Attrs["src"] = url
				} else if _, dup := seen[placeholder]; !dup {
					seen[placeholder] = struct{}{}
					*unresolved = append(*unresolved, Unresolved{PreviewHandle: src, Placeholder: placeholder})
				}
			}
		}
	}

	for i, child := range n.Content {
		out.Content[i] = rewriteNode(child, placeholders, byHandle, seen, unresolved)
	}
	return out
}
