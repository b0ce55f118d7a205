package parse

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type Header struct {
	Text  string
	Level int
}

type CodeBlock struct {
	Code     string
	Language string
}

type Paragraph struct {
	Text string
}

type List struct {
	Entries []string
}

type QuotedText struct {
	Text string
}

// ExtractContentFromMarkdown splits a markdown document into a flat list of
// Header, CodeBlock, Paragraph, List and QuotedText values, in document order.
func ExtractContentFromMarkdown(markdownText string) ([]interface{}, error) {
	var content []interface{}
	source := []byte(markdownText)

	document := goldmark.DefaultParser().Parse(
		text.NewReader(source),
	)

	err := ast.Walk(document, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch v := n.(type) {
			case *ast.Heading:
				content = append(content, Header{
					Text:  string(v.Text(source)),
					Level: v.Level,
				})
			case *ast.FencedCodeBlock:
				content = append(content, CodeBlock{
					Code:     codeBlockText(v, source),
					Language: string(v.Language(source)),
				})
			case *ast.Paragraph:
				content = append(content, Paragraph{
					Text: string(v.Text(source)),
				})
			case *ast.List:
				var list List
				cur := v.FirstChild()
				for cur != nil {
					text_ := cur.Text(source)
					cur = cur.NextSibling()
					list.Entries = append(list.Entries, string(text_))
				}
				content = append(content, list)
			case *ast.Blockquote:
				content = append(content, QuotedText{
					Text: string(v.Text(source)),
				})
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	return content, nil
}

// ExtractCodeBlocks returns the fenced code blocks of a markdown document.
// If languages are given, only blocks tagged with one of them are returned.
func ExtractCodeBlocks(markdownText string, languages ...string) ([]CodeBlock, error) {
	var results []CodeBlock
	source := []byte(markdownText)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if cb, ok := n.(*ast.FencedCodeBlock); ok {
			lang := strings.ToLower(string(cb.Language(source)))
			if len(languages) > 0 && !containsLanguage(languages, lang) {
				return ast.WalkContinue, nil
			}
			if cb.Lines().Len() > 0 {
				results = append(results, CodeBlock{
					Code:     codeBlockText(cb, source),
					Language: lang,
				})
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ExtractYAMLBlocks scans a markdown string and returns the contents of fenced
// YAML/YML code blocks, without the enclosing fences.
func ExtractYAMLBlocks(markdownText string) ([]string, error) {
	blocks, err := ExtractCodeBlocks(markdownText, "yaml", "yml")
	if err != nil {
		return nil, err
	}
	var results []string
	for _, b := range blocks {
		results = append(results, b.Code)
	}
	return results, nil
}

// ExtractJSONBlocks scans a markdown string and returns the contents of fenced
// JSON code blocks.
func ExtractJSONBlocks(markdownText string) ([]string, error) {
	blocks, err := ExtractCodeBlocks(markdownText, "json")
	if err != nil {
		return nil, err
	}
	var results []string
	for _, b := range blocks {
		results = append(results, b.Code)
	}
	return results, nil
}

func codeBlockText(cb *ast.FencedCodeBlock, source []byte) string {
	if cb.Lines().Len() == 0 {
		return ""
	}
	start := cb.Lines().At(0).Start
	stop := cb.Lines().At(cb.Lines().Len() - 1).Stop
	return string(source[start:stop])
}

func containsLanguage(languages []string, lang string) bool {
	for _, l := range languages {
		if strings.ToLower(l) == lang {
			return true
		}
	}
	return false
}
