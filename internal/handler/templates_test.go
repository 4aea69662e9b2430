package handler

import (
	"html/template"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateFuncs_CSRFField(t *testing.T) {
	tmpl := template.Must(template.New("f").Funcs(TemplateFuncs()).Parse(`{{csrfField .}}`))

	var b strings.Builder
	require.NoError(t, tmpl.Execute(&b, `a"b<c`))

	assert.Equal(t, `<input type="hidden" name="csrf_token" value="a&#34;b&lt;c">`, b.String())
}
