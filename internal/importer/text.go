package importer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlToText extracts readable text from an item body. Line breaks and
// paragraphs become newlines; scripts and styles are dropped.
func htmlToText(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", err
	}

	doc.Find("script, style").Remove()
	doc.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithHtml("\n")
	})

	var b strings.Builder
	blocks := doc.Find("p, li, h1, h2, h3, h4, h5, h6, blockquote, pre")
	if blocks.Length() == 0 {
		return normalizeLines(doc.Text()), nil
	}

	blocks.Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("p, li, blockquote").Length() > 0 {
			return
		}

		fragment := normalizeLines(s.Text())
		if fragment == "" {
			return
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fragment)
	})

	return b.String(), nil
}

func normalizeLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}

	return strings.Join(out, "\n")
}
