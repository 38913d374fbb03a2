package mapping

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText flattens an HTML fragment into whitespace-collapsed text.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var builder strings.Builder
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(builder.String()), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li":
				builder.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li":
				builder.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			builder.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				builder.Write(tokenizer.Text())
			}
		}
	}
}
