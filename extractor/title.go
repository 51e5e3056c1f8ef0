package extractor

import (
	"bytes"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// pageTitle prefers the readability title and falls back to the first
// <title> element.
func pageTitle(body []byte, pageURL *url.URL) string {
	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
		if t := strings.TrimSpace(article.Title); t != "" {
			return t
		}
	}
	return titleTag(body)
}

// titleTag uses the Go HTML tokenizer to find the first <title> element.
func titleTag(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
