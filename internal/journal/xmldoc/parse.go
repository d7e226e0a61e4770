package xmldoc

import (
	"fmt"
	"strings"
)

// Parse reads a document previously produced by Serialize (declaration,
// then exactly one root element; no comments, CDATA, namespaces, or mixed
// text+child content). It is intentionally not a general XML parser — the
// journal format never needs one.
func Parse(data []byte) (*Node, error) {
	p := &parser{s: string(data)}
	p.skipDeclaration()
	p.skipSpace()
	root, err := p.parseElement()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("xmldoc: trailing data after root element at offset %d", p.pos)
	}
	return root, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) skipDeclaration() {
	rest := p.s[p.pos:]
	trimmed := strings.TrimLeft(rest, " \t\r\n")
	if strings.HasPrefix(trimmed, "<?xml") {
		skipped := len(rest) - len(trimmed)
		end := strings.Index(trimmed, "?>")
		if end >= 0 {
			p.pos += skipped + end + len("?>")
		}
	}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) skipFormattingSpace() {
	i := p.pos
	for i < len(p.s) {
		switch p.s[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			if p.s[i] == '<' {
				p.pos = i
			}
			return
		}
	}
}

func (p *parser) errf(format string, args ...any) error {
	return fmt.Errorf("xmldoc: "+format+" at offset %d", append(args, p.pos)...)
}

func (p *parser) parseElement() (*Node, error) {
	if p.pos >= len(p.s) || p.s[p.pos] != '<' {
		return nil, p.errf("expected '<'")
	}
	p.pos++

	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	n := &Node{Name: name}

	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			return nil, p.errf("unexpected end of input in tag %q", name)
		}
		switch {
		case p.s[p.pos] == '/' && p.pos+1 < len(p.s) && p.s[p.pos+1] == '>':
			p.pos += 2
			return n, nil
		case p.s[p.pos] == '>':
			p.pos++
			if err := p.parseContent(n); err != nil {
				return nil, err
			}
			return n, nil
		default:
			attrName, err := p.parseName()
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			if p.pos >= len(p.s) || p.s[p.pos] != '=' {
				return nil, p.errf("expected '=' after attribute %q", attrName)
			}
			p.pos++
			p.skipSpace()
			val, err := p.parseQuoted()
			if err != nil {
				return nil, err
			}
			n.Attrs = append(n.Attrs, Attr{Name: attrName, Value: unescape(val)})
		}
	}
}

func (p *parser) parseName() (string, error) {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '>' || c == '/' || c == '=' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.errf("expected a name")
	}
	return p.s[start:p.pos], nil
}

func (p *parser) parseQuoted() (string, error) {
	if p.pos >= len(p.s) || p.s[p.pos] != '"' {
		return "", p.errf("expected '\"'")
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != '"' {
		p.pos++
	}
	if p.pos >= len(p.s) {
		return "", p.errf("unterminated attribute value")
	}
	val := p.s[start:p.pos]
	p.pos++
	return val, nil
}

// parseContent reads either a closing tag immediately (empty element spelled
// with separate open/close tags), text content, or nested elements, until
// the matching close tag for n.Name is consumed.
func (p *parser) parseContent(n *Node) error {
	for {
		// Only consume runs of whitespace that are pure pretty-print
		// indentation (i.e. immediately followed by '<'): our serializer
		// never inserts whitespace inside a text leaf's content, so
		// whitespace-then-'<' outside of that leaf case is always
		// formatting, never data.
		p.skipFormattingSpace()
		if p.pos >= len(p.s) {
			return p.errf("unexpected end of input, expected close of %q", n.Name)
		}
		if strings.HasPrefix(p.s[p.pos:], "</") {
			p.pos += 2
			closeName, err := p.parseName()
			if err != nil {
				return err
			}
			p.skipSpace()
			if p.pos >= len(p.s) || p.s[p.pos] != '>' {
				return p.errf("expected '>' closing %q", closeName)
			}
			p.pos++
			if closeName != n.Name {
				return p.errf("mismatched close tag: expected %q, got %q", n.Name, closeName)
			}
			return nil
		}
		if p.s[p.pos] == '<' {
			child, err := p.parseElement()
			if err != nil {
				return err
			}
			n.Children = append(n.Children, child)
			continue
		}
		// Text run up to the next '<'.
		start := p.pos
		for p.pos < len(p.s) && p.s[p.pos] != '<' {
			p.pos++
		}
		n.Text += unescape(p.s[start:p.pos])
	}
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	r := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&amp;", "&",
	)
	return r.Replace(s)
}
