package strip

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLStripper keeps the text of a document, marks images and list items,
// and numbers links as footnotes listed after the text.
type HTMLStripper struct {
	raw   strings.Builder
	out   strings.Builder
	links []string

	anchors []string // hrefs of the currently open <a> elements
	hidden  int      // depth inside <script> or <style>
}

func NewHTMLStripper() *HTMLStripper {
	return &HTMLStripper{}
}

func (s *HTMLStripper) Feed(markup string) {
	s.raw.WriteString(markup)
}

func (s *HTMLStripper) Close() error {
	z := html.NewTokenizer(strings.NewReader(s.raw.String()))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to tokenize HTML: %w", z.Err())
		}

		tok := z.Token()
		switch tt {
		case html.TextToken:
			if s.hidden == 0 {
				s.out.WriteString(tok.Data)
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			s.startTag(tok, tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			s.endTag(tok)
		}
	}
}

func (s *HTMLStripper) startTag(tok html.Token, selfClosing bool) {
	switch tok.DataAtom {
	case atom.Img:
		if src, ok := attr(tok, "src"); ok {
			fmt.Fprintf(&s.out, "[Image]: %s\n", src)
		}
	case atom.A:
		if !selfClosing {
			href, _ := attr(tok, "href")
			s.anchors = append(s.anchors, href)
		}
	case atom.Li:
		s.out.WriteString("- ")
	case atom.Script, atom.Style:
		if !selfClosing {
			s.hidden++
		}
	}
}

func (s *HTMLStripper) endTag(tok html.Token) {
	switch tok.DataAtom {
	case atom.A:
		if len(s.anchors) == 0 {
			return
		}
		href := s.anchors[len(s.anchors)-1]
		s.anchors = s.anchors[:len(s.anchors)-1]
		if href != "" {
			fmt.Fprintf(&s.out, " [%d]", len(s.links))
			s.links = append(s.links, href)
		}
	case atom.Script, atom.Style:
		if s.hidden > 0 {
			s.hidden--
		}
	}
}

func (s *HTMLStripper) Data() string {
	if len(s.links) == 0 {
		return s.out.String()
	}

	var b strings.Builder
	b.WriteString(s.out.String())
	b.WriteString("\n")
	for i, link := range s.links {
		fmt.Fprintf(&b, "  [%d]: %s\n", i, link)
	}
	return b.String()
}

func (s *HTMLStripper) Reset() {
	s.raw.Reset()
	s.out.Reset()
	s.links = nil
	s.anchors = nil
	s.hidden = 0
}

func attr(tok html.Token, name string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
