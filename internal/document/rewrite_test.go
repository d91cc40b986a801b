package document

import (
	"reflect"
	"testing"
)

func textNode(text string) Node {
	return Node{Type: "text", Text: text}
}

func imageNode(src string) Node {
	return Node{Type: "image", Attrs: map[string]any{"src": src, "alt": "photo"}}
}

func docWith(children ...Node) *Node {
	return &Node{Type: "doc", Content: children}
}

func TestRewriteNoImages(t *testing.T) {
	tests := []struct {
		name         string
		doc          *Node
		placeholders map[string]string
	}{
		{
			name: "nil placeholders",
			doc: docWith(Node{Type: "paragraph", Content: []Node{
				textNode("hello"),
			}}),
		},
		{
			name: "populated map is irrelevant without image nodes",
			doc: docWith(
				Node{Type: "heading", Attrs: map[string]any{"level": 2.0}, Content: []Node{textNode("title")}},
				Node{Type: "paragraph", Content: []Node{
					{Type: "text", Text: "styled", Marks: []Mark{{Type: "bold"}}},
				}},
			),
			placeholders: map[string]string{"ph_1": "https://cdn.example.com/a.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unresolved := Rewrite(tt.doc, tt.placeholders, nil)
			if !reflect.DeepEqual(got, tt.doc) {
				t.Errorf("expected structurally equal tree, got %+v", got)
			}
			if len(unresolved) != 0 {
				t.Errorf("expected no unresolved references, got %v", unresolved)
			}
		})
	}
}

func TestRewriteNilDocument(t *testing.T) {
	got, unresolved := Rewrite(nil, map[string]string{"ph": "url"}, nil)
	if got != nil {
		t.Errorf("expected nil result for nil document, got %+v", got)
	}
	if unresolved != nil {
		t.Errorf("expected no unresolved references, got %v", unresolved)
	}
}

func TestRewriteEmptyMapIsNoOp(t *testing.T) {
	doc := docWith(Node{Type: "paragraph", Content: []Node{imageNode("preview://abc")}})
	staged := []StagedRef{{PreviewHandle: "preview://abc", Placeholder: "ph_abc"}}

	got, unresolved := Rewrite(doc, map[string]string{}, staged)
	if !reflect.DeepEqual(got, doc) {
		t.Errorf("expected structurally equal tree, got %+v", got)
	}
	if len(unresolved) != 1 || unresolved[0].Placeholder != "ph_abc" {
		t.Errorf("expected the staged reference reported unresolved, got %v", unresolved)
	}
}

func TestRewriteDoesNotMutateInput(t *testing.T) {
	doc := docWith(Node{Type: "paragraph", Content: []Node{imageNode("preview://abc")}})
	staged := []StagedRef{{PreviewHandle: "preview://abc", Placeholder: "ph_abc"}}
	placeholders := map[string]string{"ph_abc": "https://cdn.example.com/a.png"}

	got, _ := Rewrite(doc, placeholders, staged)

	if src := doc.Content[0].Content[0].Attrs["src"]; src != "preview://abc" {
		t.Errorf("input tree was mutated, src=%v", src)
	}
	if src := got.Content[0].Content[0].Attrs["src"]; src != "https://cdn.example.com/a.png" {
		t.Errorf("rewritten src = %v", src)
	}
}

func TestRewriteStagedImageInsideParagraph(t *testing.T) {
	doc := docWith(Node{Type: "paragraph", Content: []Node{
		textNode("before"),
		imageNode("preview://a"),
		textNode("after"),
	}})
	staged := []StagedRef{{PreviewHandle: "preview://a", Placeholder: "p1"}}
	placeholders := map[string]string{"p1": "https://store/x/a.png"}

	got, unresolved := Rewrite(doc, placeholders, staged)
	if len(unresolved) != 0 {
		t.Fatalf("expected no unresolved references, got %v", unresolved)
	}

	img := got.Content[0].Content[1]
	if img.Type != "image" {
		t.Fatalf("node type changed to %q", img.Type)
	}
	if src := img.Attrs["src"]; src != "https://store/x/a.png" {
		t.Errorf("src = %v, want final URL", src)
	}
	if alt := img.Attrs["alt"]; alt != "photo" {
		t.Errorf("other attrs must be preserved, alt = %v", alt)
	}
}

func TestRewriteDuplicatedReferenceFansOut(t *testing.T) {
	doc := docWith(
		Node{Type: "paragraph", Content: []Node{imageNode("preview://dup")}},
		Node{Type: "paragraph", Content: []Node{imageNode("preview://dup")}},
	)
	staged := []StagedRef{{PreviewHandle: "preview://dup", Placeholder: "p1"}}
	placeholders := map[string]string{"p1": "https://cdn.example.com/dup.png"}

	got, unresolved := Rewrite(doc, placeholders, staged)
	if len(unresolved) != 0 {
		t.Fatalf("expected no unresolved references, got %v", unresolved)
	}
	for i := 0; i < 2; i++ {
		if src := got.Content[i].Content[0].Attrs["src"]; src != "https://cdn.example.com/dup.png" {
			t.Errorf("image %d src = %v, want shared final URL", i, src)
		}
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	doc := docWith(Node{Type: "paragraph", Content: []Node{imageNode("preview://a")}})
	staged := []StagedRef{{PreviewHandle: "preview://a", Placeholder: "p1"}}
	placeholders := map[string]string{"p1": "https://cdn.example.com/a.png"}

	first, _ := Rewrite(doc, placeholders, staged)
	second, unresolved := Rewrite(first, placeholders, staged)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second rewrite changed the tree: %+v vs %+v", first, second)
	}
	if len(unresolved) != 0 {
		t.Errorf("rewritten src must not be misclassified, got %v", unresolved)
	}
}

func TestRewriteForeignSrcPassesThrough(t *testing.T) {
	doc := docWith(
		Node{Type: "paragraph", Content: []Node{imageNode("https://elsewhere.example.com/pic.jpg")}},
		Node{Type: "paragraph", Content: []Node{imageNode("/static/logo.svg")}},
	)
	staged := []StagedRef{{PreviewHandle: "preview://a", Placeholder: "p1"}}

	got, unresolved := Rewrite(doc, map[string]string{}, staged)
	if len(unresolved) != 0 {
		t.Fatalf("foreign src must not be reported unresolved, got %v", unresolved)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Errorf("foreign references must pass through untouched")
	}
}

func TestRewriteReportsEachUnresolvedOnce(t *testing.T) {
	doc := docWith(
		Node{Type: "paragraph", Content: []Node{imageNode("preview://a"), imageNode("preview://a")}},
		Node{Type: "paragraph", Content: []Node{imageNode("preview://b")}},
	)
	staged := []StagedRef{
		{PreviewHandle: "preview://a", Placeholder: "p1"},
		{PreviewHandle: "preview://b", Placeholder: "p2"},
	}
	placeholders := map[string]string{"p2": "https://cdn.example.com/b.png"}

	got, unresolved := Rewrite(doc, placeholders, staged)
	if len(unresolved) != 1 || unresolved[0].Placeholder != "p1" {
		t.Fatalf("unresolved = %v, want exactly p1", unresolved)
	}
	if src := got.Content[0].Content[0].Attrs["src"]; src != "preview://a" {
		t.Errorf("unresolved src must be left in place, got %v", src)
	}
	if src := got.Content[1].Content[0].Attrs["src"]; src != "https://cdn.example.com/b.png" {
		t.Errorf("resolved sibling must still be rewritten, got %v", src)
	}
}

func TestParseEncodeRoundTrip(t *testing.T) {
	raw := []byte(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hi","marks":[{"type":"link","attrs":{"href":"https://example.com"}}]}]}]}`)
	node, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if node.Content[0].Content[0].Marks[0].Attrs["href"] != "https://example.com" {
		t.Errorf("mark attrs lost in parse")
	}

	encoded, err := node.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	reparsed, err := Parse(encoded)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if !reflect.DeepEqual(node, reparsed) {
		t.Errorf("round trip changed the tree")
	}

	if empty, err := Parse(nil); err != nil || empty != nil {
		t.Errorf("Parse(nil) = %v, %v", empty, err)
	}
}
