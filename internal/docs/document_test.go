package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRoundTrip(t *testing.T) {
	in := document{Title: "A & B", Body: "<p>hello</p>\n<ul><li>one</li><li>two</li></ul>"}
	out, err := parseDocument(in.render())
	require.NoError(t, err)
	assert.Equal(t, "A & B", out.Title)
	assert.Equal(t, "hello\none\ntwo", out.Text())
}

func TestPlainTextIsEscaped(t *testing.T) {
	frag, err := toHTML("1 < 2\n\n**not bold**", false)
	require.NoError(t, err)
	assert.Equal(t, "<p>1 &lt; 2</p>\n<p>**not bold**</p>\n", frag)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.Error(t, Config{URL: "dav.example.com"}.Validate())
}
