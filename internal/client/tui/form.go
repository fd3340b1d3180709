package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/api"
)

type field struct {
	key   string
	label string
	input textinput.Model
}

type fieldOpt func(*textinput.Model)

func secret(in *textinput.Model) {
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
}

func limit(n int) fieldOpt {
	return func(in *textinput.Model) { in.CharLimit = n }
}

func newField(key, label, placeholder string, opts ...fieldOpt) field {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = 128
	in.Width = 36
	for _, opt := range opts {
		opt(&in)
	}
	return field{key: key, label: label, input: in}
}

// form is a column of text inputs with one focused field and per-field
// error messages.
type form struct {
	fields []field
	focus  int
	errs   map[string]string
	banner string
}

func newForm(fields ...field) form {
	f := form{fields: fields, errs: map[string]string{}}
	f.setFocus(0)
	return f
}

func (f *form) setFocus(i int) {
	if len(f.fields) == 0 {
		return
	}
	i = (i + len(f.fields)) % len(f.fields)
	for j := range f.fields {
		f.fields[j].input.Blur()
	}
	f.focus = i
	f.fields[i].input.Focus()
}

func (f *form) next() { f.setFocus(f.focus + 1) }
func (f *form) prev() { f.setFocus(f.focus - 1) }

func (f *form) focusedKey() string {
	if len(f.fields) == 0 {
		return ""
	}
	return f.fields[f.focus].key
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	if len(f.fields) == 0 {
		return nil
	}
	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return cmd
}

func (f *form) value(key string) string {
	for _, fl := range f.fields {
		if fl.key == key {
			return fl.input.Value()
		}
	}
	return ""
}

func (f *form) set(key, value string) {
	for i := range f.fields {
		if f.fields[i].key == key {
			f.fields[i].input.SetValue(value)
		}
	}
}

func (f *form) clear(keys ...string) {
	for _, key := range keys {
		f.set(key, "")
	}
}

func (f *form) reset() {
	for i := range f.fields {
		f.fields[i].input.Reset()
	}
	f.clearErrors()
	f.setFocus(0)
}

func (f *form) clearErrors() {
	f.errs = map[string]string{}
	f.banner = ""
}

// setError spreads a validation error over its fields; anything else
// becomes the form banner.
func (f *form) setError(err error) {
	f.clearErrors()
	var valErr *api.ValidationError
	if errors.As(err, &valErr) {
		for _, fe := range valErr.Fields() {
			if _, ok := f.errs[fe.Field]; !ok {
				f.errs[fe.Field] = fe.Message
			}
		}
		return
	}
	f.banner = api.Message(err)
}

func (f form) view(keys ...string) string {
	var s strings.Builder
	for i, fl := range f.fields {
		if len(keys) > 0 && !contains(keys, fl.key) {
			continue
		}
		label := "  " + fl.label + ":"
		if i == f.focus {
			label = selectedStyle.Render(label)
		}
		s.WriteString(label + "\n")
		s.WriteString("  " + fl.input.View() + "\n")
		if msg := f.errs[fl.key]; msg != "" {
			s.WriteString(errorStyle.Render("  "+msg) + "\n")
		}
		s.WriteString("\n")
	}
	return s.String()
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
