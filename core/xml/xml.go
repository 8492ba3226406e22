// Package xml wraps xmlquery and xpath with the small query surface the
// project import readers need.
//
// Security Notes:
//   - xmlquery parses with Go's encoding/xml, which never fetches external
//     entities.
//   - Looks rejects input that is not XML before any parsing happens, so
//     plain text documents never reach the XML parser.
package xml

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML element.
type Node struct {
	node *xmlquery.Node
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Looks reports whether data starts, after an optional BOM and whitespace,
// with '<'.
func Looks(data []byte) bool {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.TrimLeft(data, " \t\r\n")
	return len(data) > 0 && data[0] == '<'
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Path builds a namespace-agnostic XPath that walks child elements by
// local name, e.g. Path("vsq3", "masterTrack") selects
// /*[local-name()='vsq3']/*[local-name()='masterTrack'].
func Path(names ...string) string {
	var b strings.Builder
	for _, name := range names {
		b.WriteString("/*[local-name()='")
		b.WriteString(name)
		b.WriteString("']")
	}
	return b.String()
}

// Relative is Path without the leading slash, for queries from a node.
func Relative(names ...string) string {
	return strings.TrimPrefix(Path(names...), "/")
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query and returns matching nodes.
func (d *Document) XPath(expr string) ([]*Node, error) {
	return queryAll(d.root, expr)
}

// XPathFirst executes an XPath query and returns the first matching node,
// or nil.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	return queryFirst(d.root, expr)
}

// XPath executes an XPath query relative to n.
func (n *Node) XPath(expr string) ([]*Node, error) {
	return queryAll(n.node, expr)
}

// XPathFirst executes an XPath query relative to n and returns the first
// match, or nil.
func (n *Node) XPathFirst(expr string) (*Node, error) {
	return queryFirst(n.node, expr)
}

func queryAll(from *xmlquery.Node, expr string) ([]*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes := xmlquery.QuerySelectorAll(from, compiled)
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

func queryFirst(from *xmlquery.Node, expr string) (*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	node := xmlquery.QuerySelector(from, compiled)
	if node == nil {
		return nil, nil
	}
	return &Node{node: node}, nil
}

// Name returns the local element name.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the text content of the node, CDATA included.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Children returns the child element nodes.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Child returns the first child element with the given local name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// ChildText returns the trimmed text of the named child, or "".
func (n *Node) ChildText(name string) string {
	return strings.TrimSpace(n.Child(name).Text())
}

// ChildInt parses the named child's text as an integer.
func (n *Node) ChildInt(name string) (int64, error) {
	text := n.ChildText(name)
	if text == "" {
		return 0, fmt.Errorf("missing <%s>", name)
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("<%s>: %w", name, err)
	}
	return v, nil
}

// Attr returns the value of a specific attribute.
func (n *Node) Attr(name string) string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}
