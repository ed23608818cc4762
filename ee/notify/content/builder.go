package content

import (
	"bytes"
	"encoding/xml"

	"github.com/kolide/localnotify/ee/notify/activation"
)

type toastDoc struct {
	XMLName xml.Name    `xml:"toast"`
	Launch  string      `xml:"launch,attr"`
	Visual  visualDoc   `xml:"visual"`
	Actions *actionsDoc `xml:"actions,omitempty"`
}

type visualDoc struct {
	Binding bindingDoc `xml:"binding"`
}

type bindingDoc struct {
	Template string    `xml:"template,attr"`
	Image    *imageDoc `xml:"image,omitempty"`
	Texts    []string  `xml:"text"`
}

type imageDoc struct {
	Placement string `xml:"placement,attr"`
	Src       string `xml:"src,attr"`
}

type actionsDoc struct {
	Actions []actionDoc `xml:"action"`
}

type actionDoc struct {
	Content   string `xml:"content,attr"`
	Arguments string `xml:"arguments,attr"`
}

// Fields describes a notification built from plain fields instead of raw markup.
type Fields struct {
	Title    string
	Body     string
	Payload  string
	IconPath string
	Actions  []Action
}

// Build renders s as a ToastGeneric document. The body tap launches with the
// payload behind the notification discriminant, and each button with its
// arguments behind the action discriminant.
func Build(s Fields) (string, error) {
	doc := toastDoc{
		Launch: activation.NotificationArgPrefix + s.Payload,
		Visual: visualDoc{
			Binding: bindingDoc{
				Template: "ToastGeneric",
				Texts:    []string{s.Title},
			},
		},
	}

	if s.Body != "" {
		doc.Visual.Binding.Texts = append(doc.Visual.Binding.Texts, s.Body)
	}

	if s.IconPath != "" {
		doc.Visual.Binding.Image = &imageDoc{Placement: "appLogoOverride", Src: s.IconPath}
	}

	if len(s.Actions) > 0 {
		doc.Actions = &actionsDoc{}
		for _, a := range s.Actions {
			doc.Actions.Actions = append(doc.Actions.Actions, actionDoc{
				Content:   a.Content,
				Arguments: activation.ActionArgPrefix + a.Arguments,
			})
		}
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

func escape(s string) string {
	var buf bytes.Buffer
	// EscapeText only fails on writer errors, which bytes.Buffer never returns
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
