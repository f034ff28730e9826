package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node element of a parsed XML document keyed by local name only
// Namespace prefixes and URIs are dropped during parsing, so lookups
// never depend on which namespace the upstream happened to use.
type Node struct {
	Name     string  // local name
	Text     string  // trimmed character data directly inside the element
	Children []*Node // child elements in document order
}

// Parse builds a Node tree from an XML document and returns the root element
func Parse(data []byte) (*Node, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	// Upstream declares utf-8; accept any declared charset as-is
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	var root *Node
	var stack []*Node
	var texts []*strings.Builder

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			} else if root == nil {
				root = node
			}
			stack = append(stack, node)
			texts = append(texts, &strings.Builder{})

		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("invalid XML: unexpected end element %s", t.Name.Local)
			}
			node := stack[len(stack)-1]
			node.Text = strings.TrimSpace(texts[len(texts)-1].String())
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
		}
	}

	if root == nil {
		return nil, errors.New("invalid XML: no root element")
	}
	return root, nil
}

// Walk visits n and every descendant in pre-order until fn returns false
func (n *Node) Walk(fn func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// FindFirst returns the first node in pre-order (n included) whose name is one of names
func (n *Node) FindFirst(names ...string) *Node {
	var found *Node
	n.Walk(func(node *Node) bool {
		for _, name := range names {
			if node.Name == name {
				found = node
				return false
			}
		}
		return true
	})
	return found
}

// FindAll returns every node in pre-order (n included) with the given name
func (n *Node) FindAll(name string) []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if node.Name == name {
			out = append(out, node)
		}
		return true
	})
	return out
}

// FirstText returns the text of the first node named name, "" when absent
func (n *Node) FirstText(name string) string {
	if found := n.FindFirst(name); found != nil {
		return found.Text
	}
	return ""
}

// Child returns the first direct child with the given name
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// Field prefers a direct child's text and falls back to the first descendant
func (n *Node) Field(name string) string {
	if child := n.Child(name); child != nil {
		return child.Text
	}
	return n.FirstText(name)
}
