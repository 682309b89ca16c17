package jira

import (
	"strings"

	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"
)

// flattenADF renders an Atlassian Document Format tree as plain text for
// task notes. Block nodes end with a blank line, list items get a "- "
// prefix, and code blocks are fenced.
func flattenADF(node *models.CommentNodeScheme) string {
	if node == nil {
		return ""
	}
	var b strings.Builder
	writeNode(&b, node)
	return strings.TrimSpace(b.String())
}

func writeNode(b *strings.Builder, node *models.CommentNodeScheme) {
	if node == nil {
		return
	}
	switch node.Type {
	case "text":
		b.WriteString(node.Text)
	case "hardBreak":
		b.WriteString("\n")
	case "paragraph", "heading":
		writeChildren(b, node)
		b.WriteString("\n\n")
	case "listItem":
		b.WriteString("- ")
		var inner strings.Builder
		writeChildren(&inner, node)
		b.WriteString(strings.TrimSpace(inner.String()))
		b.WriteString("\n")
	case "bulletList", "orderedList":
		writeChildren(b, node)
		b.WriteString("\n")
	case "codeBlock":
		b.WriteString("```\n")
		writeChildren(b, node)
		b.WriteString("\n```\n\n")
	case "mention":
		b.WriteString(attrString(node.Attrs, "text", "@mention"))
	case "inlineCard":
		b.WriteString(attrString(node.Attrs, "url", ""))
	case "rule":
		b.WriteString("---\n\n")
	default:
		writeChildren(b, node)
	}
}

func writeChildren(b *strings.Builder, node *models.CommentNodeScheme) {
	for _, child := range node.Content {
		writeNode(b, child)
	}
}

func attrString(attrs map[string]interface{}, key, fallback string) string {
	if s, ok := attrs[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
