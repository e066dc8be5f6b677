package records

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// namespace seeds every deterministic statement id.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("papergraph/statement"))

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and joins its alphanumeric runs with dashes.
func Slug(s string) string {
	return strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// PaperIDFromPath derives the stable paper id from a corpus file name.
func PaperIDFromPath(path string) string {
	base := filepath.Base(path)
	return Slug(strings.TrimSuffix(base, filepath.Ext(base)))
}

// StatementID is the natural key of a paper-scoped statement. Re-extracting
// the same text from the same paper yields the same id.
func StatementID(paperID string, t EntityType, text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return uuid.NewSHA1(namespace, []byte(paperID+"\x00"+string(t)+"\x00"+normalized)).String()
}

// AuthorID keys an author by ORCID when known, else by name.
func AuthorID(a AuthorRecord) string {
	if a.ORCID != "" {
		return "orcid:" + strings.ToUpper(a.ORCID)
	}
	return Slug(a.Name)
}

// InstitutionID keys an institution by name.
func InstitutionID(name string) string {
	return Slug(name)
}
