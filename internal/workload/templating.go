package workload

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"
)

// NameTemplates are Go templates for the names sent by the workflow.
// Shorthands such as {{vu}} and {{millis}} are accepted too.
type NameTemplates struct {
	Player string `mapstructure:"player" yaml:"player"`
	Email  string `mapstructure:"email" yaml:"email"`
	Board  string `mapstructure:"board" yaml:"board"`
}

var DefaultNameTemplates = NameTemplates{
	Player: "Player_{{.VU}}_{{.Millis}}",
	Email:  "player_{{.VU}}_{{.Millis}}@test.com",
	Board:  "Board_{{.VU}}_{{.Millis}}",
}

// NameData is passed to the execution context
type NameData struct {
	VU        int64
	Iteration int64
	Millis    int64
}

// TemplateEngine parses the name templates once. Every virtual user gets its
// own Namer whose template functions draw from that user's Generator.
type TemplateEngine struct {
	fileCache map[string][]string
	mu        sync.RWMutex

	player *template.Template
	email  *template.Template
	board  *template.Template
}

func NewTemplateEngine(t NameTemplates) (*TemplateEngine, error) {
	e := &TemplateEngine{fileCache: make(map[string][]string)}
	if t.Player == "" {
		t.Player = DefaultNameTemplates.Player
	}
	if t.Email == "" {
		t.Email = DefaultNameTemplates.Email
	}
	if t.Board == "" {
		t.Board = DefaultNameTemplates.Board
	}

	var err error
	if e.player, err = e.parse("player", t.Player); err != nil {
		return nil, err
	}
	if e.email, err = e.parse("email", t.Email); err != nil {
		return nil, err
	}
	if e.board, err = e.parse("board", t.Board); err != nil {
		return nil, err
	}
	return e, nil
}

// Preprocess converts simple variables {{vu}} to Go template syntax {{.VU}}
func Preprocess(input string) string {
	s := input
	s = strings.ReplaceAll(s, "{{vu}}", "{{.VU}}")
	s = strings.ReplaceAll(s, "{{millis}}", "{{.Millis}}")
	s = strings.ReplaceAll(s, "{{iteration}}", "{{.Iteration}}")
	return s
}

func (e *TemplateEngine) parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(e.funcs(nil)).Parse(Preprocess(text))
	if err != nil {
		return nil, fmt.Errorf("parse %s name template: %w", name, err)
	}
	return t, nil
}

// funcs binds the template functions to gen. A nil gen is only used to
// declare the names at parse time.
func (e *TemplateEngine) funcs(gen *Generator) template.FuncMap {
	return template.FuncMap{
		"randomInt": func(min, max int) int {
			return min + gen.Intn(max-min)
		},
		"randomChoice": func(choices ...string) string {
			return gen.Choice(choices)
		},
		"randomLine": func(filename string) (string, error) {
			lines, err := e.lines(filename)
			if err != nil {
				return "", err
			}
			return gen.Choice(lines), nil
		},
		"uuid":       func() string { return gen.UUID() },
		"randomUUID": func() string { return gen.UUID() },
	}
}

// Namer returns name renderers bound to gen.
func (e *TemplateEngine) Namer(gen *Generator) *Namer {
	funcs := e.funcs(gen)
	bind := func(t *template.Template) *template.Template {
		c := template.Must(t.Clone())
		return c.Funcs(funcs)
	}
	return &Namer{
		player: bind(e.player),
		email:  bind(e.email),
		board:  bind(e.board),
	}
}

func (e *TemplateEngine) lines(filename string) ([]string, error) {
	e.mu.RLock()
	lines, ok := e.fileCache[filename]
	e.mu.RUnlock()
	if ok {
		return lines, nil
	}

	// Load file (Lazy load)
	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if lines, ok = e.fileCache[filename]; ok {
		return lines, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s': %w", filename, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	var loaded []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			loaded = append(loaded, line)
		}
	}
	e.fileCache[filename] = loaded
	return loaded, nil
}

// Namer renders the names of one virtual user. It is not safe for
// concurrent use, which matches the one-goroutine-per-user model.
type Namer struct {
	player *template.Template
	email  *template.Template
	board  *template.Template
}

func (n *Namer) Player(d NameData) (string, error) { return execute(n.player, d) }
func (n *Namer) Email(d NameData) (string, error)  { return execute(n.email, d) }
func (n *Namer) Board(d NameData) (string, error)  { return execute(n.board, d) }

func execute(t *template.Template, d NameData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
