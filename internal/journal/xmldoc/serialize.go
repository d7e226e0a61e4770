package xmldoc

import "strings"

const declaration = `<?xml version="1.0" encoding="utf-8"?>`

// Serialize renders the document rooted at root. pretty selects 2-space
// indentation with a newline after every element; compact emits no
// whitespace beyond what the content itself carries.
func Serialize(root *Node, pretty bool) []byte {
	var b strings.Builder
	b.WriteString(declaration)
	if pretty {
		b.WriteByte('\n')
	}
	writeNode(&b, root, 0, pretty)
	return []byte(b.String())
}

func writeNode(b *strings.Builder, n *Node, depth int, pretty bool) {
	indent(b, depth, pretty)
	b.WriteByte('<')
	b.WriteString(n.Name)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.Value))
		b.WriteByte('"')
	}

	switch {
	case len(n.Children) == 0 && n.Text == "":
		b.WriteString("/>")
	case len(n.Children) == 0:
		b.WriteByte('>')
		b.WriteString(escapeText(n.Text))
		b.WriteString("</")
		b.WriteString(n.Name)
		b.WriteByte('>')
	default:
		b.WriteByte('>')
		if pretty {
			b.WriteByte('\n')
		}
		for _, c := range n.Children {
			writeNode(b, c, depth+1, pretty)
		}
		indent(b, depth, pretty)
		b.WriteString("</")
		b.WriteString(n.Name)
		b.WriteByte('>')
	}
	if pretty {
		b.WriteByte('\n')
	}
}

func indent(b *strings.Builder, depth int, pretty bool) {
	if !pretty {
		return
	}
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func escapeAttr(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}

func escapeText(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return r.Replace(s)
}
