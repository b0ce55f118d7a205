package prompts

import (
	"bytes"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// Render executes a system prompt template against data. Templates have the
// full sprig function map available.
func Render(templateText string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Funcs(sprig.TxtFuncMap()).Parse(templateText)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse prompt template")
	}

	buf := &bytes.Buffer{}
	err = tmpl.Execute(buf, data)
	if err != nil {
		return "", errors.Wrap(err, "failed to render prompt template")
	}

	return buf.String(), nil
}

type Prompt struct {
	Name     string
	Template string
}

func (p Prompt) Render(data interface{}) (string, error) {
	return Render(p.Template, data)
}

// Library is a thread-safe collection of named prompt templates.
type Library struct {
	mu      sync.RWMutex
	prompts map[string]Prompt
}

func NewLibrary() *Library {
	return &Library{
		prompts: make(map[string]Prompt),
	}
}

// Register adds a prompt to the library, replacing any prompt with the same name.
func (l *Library) Register(p Prompt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts[p.Name] = p
}

func (l *Library) Get(name string) (Prompt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.prompts[name]
	return p, ok
}

func (l *Library) Render(name string, data interface{}) (string, error) {
	p, ok := l.Get(name)
	if !ok {
		return "", errors.Errorf("prompt %s not found", name)
	}
	return p.Render(data)
}
