package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeText collapses a scraped string down to a single
// whitespace-normalized printable line.
func NormalizeText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "table": true,
	"ul": true, "ol": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// RenderText converts a document fragment to readable plain text:
// inline markup is stripped, block elements and <br> become line
// breaks. Markup order is preserved.
func RenderText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, node := range sel.Nodes {
		renderTextRecursive(node, &buffer)
	}
	return tidyRendered(buffer.String())
}

func renderTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(innerWhitespace.ReplaceAllString(node.Data, " "))
		return
	case html.ElementNode:
		if node.Data == "br" {
			buffer.WriteString("\n")
			return
		}
		if node.Data == "script" || node.Data == "style" {
			return
		}
		if blockElements[node.Data] {
			buffer.WriteString("\n")
		}
	}

	child := node.FirstChild
	for child != nil {
		renderTextRecursive(child, buffer)
		child = child.NextSibling
	}

	if node.Type == html.ElementNode && blockElements[node.Data] {
		buffer.WriteString("\n")
	}
}

var excessiveNewlines = regexp.MustCompile(`\n{3,}`)
var lineEdgeSpace = regexp.MustCompile(`(?m)^[ \t]+|[ \t]+$`)

func tidyRendered(s string) string {
	s = lineEdgeSpace.ReplaceAllString(s, "")
	s = excessiveNewlines.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, " \t\n")
}
