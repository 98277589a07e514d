package reader

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTML reads the stream as text and parses it as an HTML document on demand.
// Mutable
type HTML struct {
	String
}

func NewHTML() *HTML {
	return &HTML{}
}

// NewHTMLCharset is like NewHTML but decodes the input according to
// contentType, see NewStringCharset.
func NewHTMLCharset(contentType string) *HTML {
	return &HTML{String: String{contentType: contentType}}
}

func (h *HTML) Document() (*goquery.Document, error) {
	data, ok := h.Data()
	if !ok {
		return nil, fmt.Errorf("%w: the data is missing", ErrParse)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return doc, nil
}

// SelectText returns the trimmed text of every element matching selector.
func (h *HTML) SelectText(selector string) ([]string, error) {
	doc, err := h.Document()
	if err != nil {
		return nil, err
	}

	var texts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})
	return texts, nil
}
