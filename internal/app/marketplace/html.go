package marketplace

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Walk tree depth-first and collect nodes matching predicate.
func findAll(root *html.Node, match func(node *html.Node) bool) []*html.Node {
	var nodes []*html.Node

	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if match(node) {
			nodes = append(nodes, node)
		}

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}

	walk(root)

	return nodes
}

func findFirst(root *html.Node, match func(node *html.Node) bool) *html.Node {
	nodes := findAll(root, match)
	if len(nodes) == 0 {
		return nil
	}

	return nodes[0]
}

func isElement(tag atom.Atom) func(node *html.Node) bool {
	return func(node *html.Node) bool {
		return node.Type == html.ElementNode && node.DataAtom == tag
	}
}

func hasClasses(classes ...string) func(node *html.Node) bool {
	return func(node *html.Node) bool {
		if node.Type != html.ElementNode {
			return false
		}

		present := strings.Fields(getAttribute(node, "class"))

		for _, class := range classes {
			found := false
			for _, item := range present {
				if item == class {
					found = true
					break
				}
			}

			if !found {
				return false
			}
		}

		return true
	}
}

func getAttribute(node *html.Node, name string) string {
	for _, attribute := range node.Attr {
		if attribute.Key == name {
			return attribute.Val
		}
	}

	return ""
}

// Concatenated text of node, text chunks separated by spaces.
func textContent(node *html.Node) string {
	var builder strings.Builder

	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.DataAtom == atom.Script || node.DataAtom == atom.Style) {
			return
		}

		if node.Type == html.TextNode {
			builder.WriteString(node.Data)
			builder.WriteByte(' ')
		}

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}

	walk(node)

	return strings.Join(strings.Fields(builder.String()), " ")
}

// Closest ancestor with given tag.
func closest(node *html.Node, tag atom.Atom) *html.Node {
	for parent := node.Parent; parent != nil; parent = parent.Parent {
		if parent.Type == html.ElementNode && parent.DataAtom == tag {
			return parent
		}
	}

	return nil
}

// Content of <meta property="..."> or <meta name="...">.
func metaContent(root *html.Node, property string) string {
	node := findFirst(root, func(node *html.Node) bool {
		return node.Type == html.ElementNode && node.DataAtom == atom.Meta &&
			(getAttribute(node, "property") == property || getAttribute(node, "name") == property)
	})

	if node == nil {
		return ""
	}

	return strings.TrimSpace(getAttribute(node, "content"))
}

func absoluteUrl(value string) string {
	switch {
	case strings.HasPrefix(value, "//"):
		return "https:" + value
	case strings.HasPrefix(value, "/"):
		return BaseUrl + value
	}

	return value
}
