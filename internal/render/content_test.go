package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveContentPrecedence(t *testing.T) {
	t.Parallel()

	templates := fakeTemplates{"card": "<html><head></head><body>card</body></html>"}
	open := NetworkPolicy{AllowURL: true, Allowlist: NewAllowlist([]string{"example.com"})}

	tests := []struct {
		name    string
		req     Request
		policy  NetworkPolicy
		want    Content
		wantErr error
	}{
		{
			name:   "template wins over html and url",
			req:    Request{TemplateName: "card", HTML: "<p>x</p>", URL: "https://example.com"},
			policy: open,
			want:   Content{Kind: ContentHTML, Markup: "<html><head></head><body>card</body></html>"},
		},
		{
			name:   "html wins over url",
			req:    Request{HTML: "<p>x</p>", URL: "https://example.com"},
			policy: open,
			want:   Content{Kind: ContentHTML, Markup: "<p>x</p>"},
		},
		{
			name:   "url",
			req:    Request{URL: "https://example.com/a", CSS: "body{}"},
			policy: open,
			want:   Content{Kind: ContentURL, Target: "https://example.com/a", CSS: "body{}"},
		},
		{
			name:    "url disabled",
			req:     Request{URL: "https://example.com"},
			wantErr: ErrURLRenderingDisabled,
		},
		{
			name:    "url not allowlisted",
			req:     Request{URL: "https://evil.test"},
			policy:  open,
			wantErr: ErrURLNotAllowlisted,
		},
		{
			name:    "non http scheme",
			req:     Request{URL: "file:///etc/passwd"},
			policy:  open,
			wantErr: ErrURLNotAllowlisted,
		},
		{
			name:    "unknown template",
			req:     Request{TemplateName: "missing"},
			wantErr: ErrTemplateFailed,
		},
		{
			name:    "nothing",
			req:     Request{TemplateName: "  ", URL: " "},
			wantErr: ErrNoContentSource,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveContent(tt.req, templates, tt.policy)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveContentWithoutTemplates(t *testing.T) {
	t.Parallel()

	_, err := ResolveContent(Request{TemplateName: "card"}, nil, NetworkPolicy{})
	assert.ErrorIs(t, err, ErrTemplateFailed)
}

func TestInjectCSS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		markup string
		css    string
		want   string
	}{
		{"before head close", "<html><head><title>t</title></head><body></body></html>", "h1{}",
			"<html><head><title>t</title><style>h1{}</style></head><body></body></html>"},
		{"case insensitive", "<HEAD></HEAD >", "a{}", "<HEAD><style>a{}</style></HEAD >"},
		{"first head only", "<head></head><head></head>", "a{}", "<head><style>a{}</style></head><head></head>"},
		{"no head", "<body>x</body>", "a{}", "<body>x</body>"},
		{"empty css", "<head></head>", "  ", "<head></head>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, InjectCSS(tt.markup, tt.css))
		})
	}
}

func TestResolveContentInjectsCSSIntoMarkup(t *testing.T) {
	t.Parallel()

	got, err := ResolveContent(Request{HTML: "<head></head>", CSS: "p{}"}, nil, NetworkPolicy{})
	require.NoError(t, err)
	assert.Equal(t, "<head><style>p{}</style></head>", got.Markup)
	assert.Empty(t, got.CSS)
}

func TestAllowlist(t *testing.T) {
	t.Parallel()

	list := NewAllowlist([]string{"Example.com, *.cdn.test", "", "*.cdn.test"})
	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"EXAMPLE.com.", true},
		{"www.example.com", false},
		{"a.cdn.test", true},
		{"a.b.cdn.test", true},
		{"cdn.test", false},
		{"evilcdn.test", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, list.AllowsHost(tt.host), tt.host)
	}
	assert.ElementsMatch(t, []string{"example.com", "*.cdn.test"}, list.Patterns())
	assert.False(t, list.Empty())
	assert.True(t, NewAllowlist(nil).Empty())
	assert.False(t, list.AllowsURL("://bad"))

	var nilList *Allowlist
	assert.False(t, nilList.AllowsHost("example.com"))
	assert.True(t, nilList.Empty())
}

func TestNetworkPolicy(t *testing.T) {
	t.Parallel()

	list := NewAllowlist([]string{"example.com"})
	tests := []struct {
		name   string
		policy NetworkPolicy
		url    string
		want   bool
	}{
		{"data always", NetworkPolicy{BlockExternal: true}, "data:image/png;base64,AAA", true},
		{"blob always", NetworkPolicy{BlockExternal: true}, "BLOB:https://x/y", true},
		{"blocked external", NetworkPolicy{BlockExternal: true, AllowURL: true, Allowlist: list}, "https://example.com/a.css", false},
		{"url rendering off", NetworkPolicy{Allowlist: list}, "https://example.com/a.css", false},
		{"allowlisted", NetworkPolicy{AllowURL: true, Allowlist: list}, "https://example.com/a.css", true},
		{"not allowlisted", NetworkPolicy{AllowURL: true, Allowlist: list}, "https://other.test/a.css", false},
		{"empty allowlist", NetworkPolicy{AllowURL: true}, "https://example.com/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.policy.ShouldAllow(tt.url))
		})
	}
}
