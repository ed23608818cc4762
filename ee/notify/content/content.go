// Package content validates and inspects toast notification markup, and builds
// simple markup for title/body notifications.
package content

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clbanning/mxj"
)

// ErrInvalidXML is returned for markup that does not parse as a toast document.
var ErrInvalidXML = errors.New("invalid toast xml")

const (
	attrPrefix = "-"
	textKey    = "#text"
)

// Action is a button on a toast.
type Action struct {
	Content   string
	Arguments string
}

// Toast is the subset of a toast document needed by backends that render
// notifications themselves.
type Toast struct {
	Launch  string
	Texts   []string
	Actions []Action
}

// Title is the first text line.
func (t Toast) Title() string {
	if len(t.Texts) == 0 {
		return ""
	}
	return t.Texts[0]
}

// Body is every text line after the title.
func (t Toast) Body() string {
	if len(t.Texts) < 2 {
		return ""
	}
	return strings.Join(t.Texts[1:], "\n")
}

// Validate reports ErrInvalidXML unless markup is a well formed document with a
// <toast> root.
func Validate(markup string) error {
	_, err := parse(markup)
	return err
}

func parse(markup string) (mxj.Map, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidXML)
	}

	mv, err := mxj.NewMapXml([]byte(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidXML, err.Error())
	}

	if _, ok := mv["toast"]; !ok {
		return nil, fmt.Errorf("%w: root element must be toast", ErrInvalidXML)
	}

	return mv, nil
}

// Parse validates markup and extracts its launch argument, text lines and actions.
func Parse(markup string) (Toast, error) {
	mv, err := parse(markup)
	if err != nil {
		return Toast{}, err
	}

	var t Toast

	if launch, err := mv.ValueForPath("toast." + attrPrefix + "launch"); err == nil {
		t.Launch = stringValue(launch)
	}

	texts, err := mv.ValuesForPath("toast.visual.binding.text")
	if err == nil {
		for _, text := range texts {
			t.Texts = append(t.Texts, stringValue(text))
		}
	}

	actions, err := mv.ValuesForPath("toast.actions.action")
	if err == nil {
		for _, a := range actions {
			m, ok := a.(map[string]interface{})
			if !ok {
				continue
			}
			t.Actions = append(t.Actions, Action{
				Content:   stringValue(m[attrPrefix+"content"]),
				Arguments: stringValue(m[attrPrefix+"arguments"]),
			})
		}
	}

	return t, nil
}

// stringValue flattens an mxj value: elements with attributes decode as maps
// holding their character data under #text.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		if text, ok := val[textKey]; ok {
			return stringValue(text)
		}
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// ApplyBindings substitutes {key} placeholders with their bound values, for
// backends without native data binding. Values are escaped for XML.
func ApplyBindings(markup string, bindings map[string]string) string {
	if len(bindings) == 0 {
		return markup
	}

	pairs := make([]string, 0, len(bindings)*2)
	for k, v := range bindings {
		pairs = append(pairs, "{"+k+"}", escape(v))
	}

	return strings.NewReplacer(pairs...).Replace(markup)
}
