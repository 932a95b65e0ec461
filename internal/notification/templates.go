package notification

import (
	"fmt"
	"html/template"
	"strings"
)

const (
	TemplateOpenRoom     = "openRoom"
	TemplateResolvedRoom = "resolvedRoom"
)

const (
	openRoomSubject     = "%s invited you to collaborate"
	resolvedRoomSubject = "%s has been handled"
)

var templates = template.Must(template.New(TemplateOpenRoom).Parse(`<p>Hi {{.FullName}},</p>
<p>{{.CreatorFullName}} invited you to the situation room <strong>{{.RoomName}}</strong>.</p>
{{if .AppURL}}<p><a href="{{.AppURL}}">Open the situation room</a></p>{{end}}`))

func init() {
	template.Must(templates.New(TemplateResolvedRoom).Parse(`<p>Hi {{.FullName}},</p>
<p>The situation room <strong>{{.RoomName}}</strong> has been resolved by {{.ResolverFullName}}.</p>
{{if .AppURL}}<p><a href="{{.AppURL}}">Review the resolution</a></p>{{end}}`))
}

// Recipient is one addressee with the name used in the greeting.
type Recipient struct {
	Email    string
	FullName string
}

type RoomMail struct {
	Template         string
	RoomName         string
	CreatorFullName  string
	ResolverFullName string
	AppURL           string
	Recipients       []Recipient
}

type templateData struct {
	FullName         string
	RoomName         string
	CreatorFullName  string
	ResolverFullName string
	AppURL           string
}

func (m RoomMail) subject() (string, error) {
	switch m.Template {
	case TemplateOpenRoom:
		return fmt.Sprintf(openRoomSubject, m.CreatorFullName), nil
	case TemplateResolvedRoom:
		return fmt.Sprintf(resolvedRoomSubject, m.RoomName), nil
	default:
		return "", fmt.Errorf("unknown email template %q", m.Template)
	}
}

// Render produces one email per recipient with an address.
func (m RoomMail) Render() ([]Email, error) {
	subject, err := m.subject()
	if err != nil {
		return nil, err
	}
	out := make([]Email, 0, len(m.Recipients))
	for _, r := range m.Recipients {
		if r.Email == "" {
			continue
		}
		var body strings.Builder
		err := templates.ExecuteTemplate(&body, m.Template, templateData{
			FullName:         r.FullName,
			RoomName:         m.RoomName,
			CreatorFullName:  m.CreatorFullName,
			ResolverFullName: m.ResolverFullName,
			AppURL:           m.AppURL,
		})
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", m.Template, err)
		}
		out = append(out, Email{To: r.Email, Subject: subject, Body: body.String()})
	}
	return out, nil
}
