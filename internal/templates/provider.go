// Package templates renders Handlebars templates from a directory.
package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/aymerick/raymond"
	"go.uber.org/zap"
)

var (
	// ErrInvalidTemplateName is returned for names outside [A-Za-z0-9_-].
	ErrInvalidTemplateName = errors.New("invalid template name")
	// ErrTemplateNotFound is returned when no file matches the name.
	ErrTemplateNotFound = errors.New("template not found")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Extensions tried, in order, when resolving a template name.
var Extensions = []string{".hbs", ".handlebars"}

// Provider compiles templates on first use and caches them.
type Provider struct {
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*raymond.Template
}

// NewProvider builds a provider rooted at dir. The directory may not exist
// yet; lookups then fail with ErrTemplateNotFound.
func NewProvider(dir string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]*raymond.Template),
	}
}

// Render executes the named template with data.
func (p *Provider) Render(name string, data map[string]any) (string, error) {
	tpl, err := p.template(name)
	if err != nil {
		return "", err
	}
	if data == nil {
		data = map[string]any{}
	}
	out, err := tpl.Exec(data)
	if err != nil {
		return "", fmt.Errorf("execute template %q: %w", name, err)
	}
	return out, nil
}

// Names lists template names found in the directory.
func (p *Provider) Names() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read templates dir: %w", err)
	}
	seen := map[string]bool{}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		for _, want := range Extensions {
			if ext != want {
				continue
			}
			name := entry.Name()[:len(entry.Name())-len(ext)]
			if validName.MatchString(name) && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (p *Provider) template(name string) (*raymond.Template, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTemplateName, name)
	}

	p.mu.RLock()
	tpl, ok := p.cache[name]
	p.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	path, err := p.resolve(name)
	if err != nil {
		return nil, err
	}
	tpl, err = raymond.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("compile template %q: %w", name, err)
	}

	p.mu.Lock()
	if cached, ok := p.cache[name]; ok {
		tpl = cached
	} else {
		p.cache[name] = tpl
	}
	p.mu.Unlock()
	p.logger.Debug("template compiled", zap.String("name", name), zap.String("path", path))
	return tpl, nil
}

func (p *Provider) resolve(name string) (string, error) {
	for _, ext := range Extensions {
		path := filepath.Join(p.dir, name+ext)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat template %q: %w", name, err)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
}
