package extraction

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
)

// Document is one paper's text as handed to the orchestrator.
type Document struct {
	PaperID string
	Path    string
	Text    string
}

// NewDocument keys a document by its file name.
func NewDocument(path, text string) *Document {
	return &Document{
		PaperID: records.PaperIDFromPath(path),
		Path:    path,
		Text:    text,
	}
}

// FileName returns the base name of the source file.
func (d *Document) FileName() string {
	return filepath.Base(d.Path)
}

// Head returns the first n runes of the text.
func (d *Document) Head(n int) string {
	return headRunes(d.Text, n)
}

func headRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// textIndex answers "does this name occur in the text" for the
// hallucination guard and the dictionary scan.
type textIndex struct {
	raw    string
	lower  string // ASCII-lowered raw, same byte offsets
	folded string // " " + Fold(raw) + " "
}

func newTextIndex(raw string) *textIndex {
	return &textIndex{
		raw:    raw,
		lower:  asciiLower(raw),
		folded: " " + normalize.Fold(raw) + " ",
	}
}

// contains reports whether form occurs as whole words. Acronyms must match
// case-sensitively; everything else is compared folded.
func (x *textIndex) contains(form string) bool {
	form = strings.TrimSpace(form)
	if form == "" {
		return false
	}
	if isAcronym(form) {
		return containsWord(x.raw, form)
	}
	f := normalize.Fold(form)
	if f == "" {
		return false
	}
	return strings.Contains(x.folded, " "+f+" ")
}

// offset returns the byte offset of the first occurrence of any form, or -1.
// Acronyms match case-sensitively, as in contains.
func (x *textIndex) offset(forms ...string) int {
	for _, form := range forms {
		form = strings.TrimSpace(form)
		if form == "" {
			continue
		}
		i := -1
		if isAcronym(form) {
			i = indexWord(x.raw, form)
		} else {
			i = indexWord(x.lower, asciiLower(form))
		}
		if i >= 0 {
			return i
		}
	}
	return -1
}

// window returns about n runes on each side of offset.
func (x *textIndex) window(offset, n int) string {
	if offset < 0 || offset > len(x.raw) {
		return ""
	}
	start := offset
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(x.raw[:start])
		start -= size
	}
	end := offset
	for i := 0; i < n && end < len(x.raw); i++ {
		_, size := utf8.DecodeRuneInString(x.raw[end:])
		end += size
	}
	return strings.Join(strings.Fields(x.raw[start:end]), " ")
}

func isAcronym(s string) bool {
	letters := 0
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			letters++
		case unicode.IsDigit(r) || r == '-' || r == '&':
		default:
			return false
		}
	}
	return letters >= 2 && len(s) <= 12
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func indexWord(s, w string) int {
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], w)
		if j < 0 {
			return -1
		}
		j += i
		end := j + len(w)
		if (j == 0 || !isWordByte(s[j-1])) && (end == len(s) || !isWordByte(s[end])) {
			return j
		}
		i = j + 1
	}
	return -1
}

func containsWord(s, w string) bool {
	return indexWord(s, w) >= 0
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// sentences splits text at . ! or ? followed by whitespace.
func sentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// lines returns the trimmed non-empty lines of text.
func lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func validSection(s records.Section) bool {
	return s.Index() >= 0
}
