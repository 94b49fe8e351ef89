package rfc822

import "strings"

// opText is the surface-form text for each operator/structural Kind.
var opText = map[Kind]string{
	At: "@", Comma: ",", Semicolon: ";", Colon: ":", StartGrp: ":",
	Dot: ".", LAngle: "<", RAngle: ">", LParen: "(", RParen: ")",
	LBracket: "[", RBracket: "]",
}

// Internalize renders the tree with the local part unquoted and the
// domain as a plain dot-atom — the form carried on the resolver wire
// protocol and used for map lookups.
func Internalize(t *Tree) string {
	return render(t, t.head, false)
}

// Externalize renders the tree as an RFC 822 surface form: every Qstring
// token is re-quoted and comments are kept; Atom tokens are written as
// they are, never quoted.
func Externalize(t *Tree) string {
	return render(t, t.head, true)
}

func render(t *Tree, head Handle, quote bool) string {
	var b strings.Builder
	for h := t.First(head); h != nilH; h = t.Next(h) {
		switch t.Kind(h) {
		case Atom:
			b.WriteString(t.Text(h))
		case Qstring:
			if quote {
				b.WriteString(quoteQstring(t.Text(h)))
			} else {
				b.WriteString(t.Text(h))
			}
		case Comment:
			if quote {
				b.WriteByte('(')
				b.WriteString(t.Text(h))
				b.WriteByte(')')
			}
			// Comments carry no routing meaning and are dropped from the
			// internalized form.
		case Addr:
			b.WriteByte('<')
			b.WriteString(render(t, t.Children(h), quote))
			b.WriteByte('>')
		default:
			b.WriteString(opText[t.Kind(h)])
		}
	}
	return b.String()
}

// quoteQstring re-adds RFC 822 quoting to content that came from a
// Qstring token, escaping '\\' and '"'.
func quoteQstring(content string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, ch := range content {
		if ch == '\\' || ch == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	b.WriteByte('"')
	return b.String()
}
