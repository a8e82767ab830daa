package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/htmlshot/internal/render"
)

var _ render.TemplateRenderer = (*Provider)(nil)

func writeTemplate(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0o600))
}

func TestRender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "card.hbs", `<h1>{{title}}</h1>{{#if sub}}<p>{{sub}}</p>{{/if}}`)
	writeTemplate(t, dir, "alt.handlebars", `<b>{{name}}</b>`)
	p := NewProvider(dir, nil)

	out, err := p.Render("card", map[string]any{"title": "Hi & bye", "sub": "there"})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hi &amp; bye</h1><p>there</p>", out)

	out, err = p.Render("card", nil)
	require.NoError(t, err)
	assert.Equal(t, "<h1></h1>", out)

	out, err = p.Render("alt", map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "<b>x</b>", out)
}

func TestRenderCachesCompiledTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "card.hbs", `v1 {{x}}`)
	p := NewProvider(dir, nil)

	out, err := p.Render("card", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "v1 1", out)

	writeTemplate(t, dir, "card.hbs", `v2 {{x}}`)
	out, err = p.Render("card", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "v1 1", out)
}

func TestRenderErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "broken.hbs", `{{#if}}`)
	p := NewProvider(dir, nil)

	_, err := p.Render("../etc/passwd", nil)
	assert.ErrorIs(t, err, ErrInvalidTemplateName)

	_, err = p.Render("", nil)
	assert.ErrorIs(t, err, ErrInvalidTemplateName)

	_, err = p.Render("missing", nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = p.Render("broken", nil)
	assert.ErrorContains(t, err, "compile template")
}

func TestNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "a.hbs", "a")
	writeTemplate(t, dir, "b.handlebars", "b")
	writeTemplate(t, dir, "notes.txt", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.hbs"), 0o750))

	names, err := NewProvider(dir, nil).Names()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	names, err = NewProvider(filepath.Join(dir, "nope"), nil).Names()
	require.NoError(t, err)
	assert.Empty(t, names)
}
