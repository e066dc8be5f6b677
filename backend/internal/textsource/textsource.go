// Package textsource turns corpus files into plain text.
package textsource

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// Supported lists the file extensions ExtractText understands.
var Supported = []string{".pdf", ".html", ".htm", ".txt", ".md"}

// IsSupported reports whether path has a supported extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range Supported {
		if ext == s {
			return true
		}
	}
	return false
}

// Discover walks corpus and returns every supported file, sorted. A corpus
// that is a single file is returned as is.
func Discover(corpus string) ([]string, error) {
	info, err := os.Stat(corpus)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", corpus, err)
	}
	if !info.IsDir() {
		if !IsSupported(corpus) {
			return nil, fmt.Errorf("unsupported file type: %s", corpus)
		}
		return []string{corpus}, nil
	}

	var files []string
	err = filepath.WalkDir(corpus, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != corpus && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking corpus: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// ExtractText returns the plain text of a PDF, HTML, text or markdown file.
func ExtractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".html", ".htm":
		return extractHTML(path)
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", path)
	}
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no extractable text in %s", path)
	}
	return b.String(), nil
}

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, figcaption, td, th, dt, dd"

func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	doc.Find("script, style, noscript, nav, header, footer, iframe, svg").Remove()

	// one line per block element keeps headings on their own lines
	var lines []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if line := collapse(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		if text := collapse(doc.Find("body").Text()); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
