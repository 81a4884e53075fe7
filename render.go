package privmsg

import "html"

// Renderer converts message body markup into presentation formats.
// The host application supplies its markup engine (Markdown or similar);
// the default renderer treats bodies as plain text.
type Renderer interface {
	// ToHTML renders the body as HTML.
	ToHTML(body string) string
	// ToPlainText renders the body as plain text, stripping markup.
	ToPlainText(body string) string
}

// plainRenderer is the default Renderer for bodies without markup.
type plainRenderer struct{}

func (plainRenderer) ToHTML(body string) string {
	return "<p>" + html.EscapeString(body) + "</p>"
}

func (plainRenderer) ToPlainText(body string) string {
	return body
}
