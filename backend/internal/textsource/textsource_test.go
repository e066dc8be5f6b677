package textsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.pdf", "")
	writeFile(t, dir, "a.txt", "")
	writeFile(t, dir, "sub/c.HTML", "")
	writeFile(t, dir, "notes.docx", "")
	writeFile(t, dir, ".cache/d.txt", "")

	files, err := Discover(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "sub", "c.HTML"),
	}, files)
}

func TestDiscover_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.md", "# Title")

	files, err := Discover(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)

	_, err = Discover(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestExtractText_HTML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.html", `<html><head><style>p{}</style><script>var x=1;</script></head>
<body><nav>Home | About</nav>
<h1>Boards and   Turnover</h1>
<h2>1. Introduction</h2>
<p>Agency theory <em>predicts</em> discipline.</p>
<ul><li><p>nested</p></li></ul>
</body></html>`)

	text, err := ExtractText(path)
	require.NoError(t, err)

	assert.Equal(t, "Boards and Turnover\n1. Introduction\nAgency theory predicts discipline.\nnested", text)
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "Home")
}

func TestExtractText_Plain(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.txt", "Title\n\nAbstract\nText.")

	text, err := ExtractText(path)
	require.NoError(t, err)
	assert.Equal(t, "Title\n\nAbstract\nText.", text)
}

func TestExtractText_Unsupported(t *testing.T) {
	_, err := ExtractText("paper.docx")
	assert.Error(t, err)

	dir := t.TempDir()
	path := writeFile(t, dir, "broken.pdf", "not a pdf")
	_, err = ExtractText(path)
	assert.Error(t, err)
}
