package notifx

import (
	"bytes"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
)

// Built-in template names.
const (
	TemplateInvitation        = "invitation"
	TemplateAccountRegistered = "account_registered"
)

// Template holds the sources of one email. HTML is optional.
type Template struct {
	Subject string
	Text    string
	HTML    string
}

// Rendered is a template executed against data.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

type parsed struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// TemplateRegistry stores and renders named email templates.
type TemplateRegistry struct {
	templates map[string]*parsed
	mu        sync.RWMutex
}

func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*parsed),
	}
}

// DefaultTemplates returns a registry holding the built-in templates.
func DefaultTemplates() *TemplateRegistry {
	r := NewTemplateRegistry()
	for name, tmpl := range builtin {
		if err := r.Register(name, tmpl); err != nil {
			panic(err)
		}
	}
	return r
}

// Register parses and stores a template by name.
func (r *TemplateRegistry) Register(name string, tmpl Template) error {
	p := &parsed{}
	var err error

	if p.subject, err = texttemplate.New(name + ".subject").Parse(tmpl.Subject); err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}
	if p.text, err = texttemplate.New(name + ".text").Parse(tmpl.Text); err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}
	if tmpl.HTML != "" {
		if p.html, err = htmltemplate.New(name + ".html").Parse(tmpl.HTML); err != nil {
			return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
		}
	}

	r.mu.Lock()
	r.templates[name] = p
	r.mu.Unlock()

	return nil
}

// Render executes a named template with the given data.
func (r *TemplateRegistry) Render(name string, data any) (*Rendered, error) {
	r.mu.RLock()
	p, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return nil, notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var out Rendered
	var buf bytes.Buffer

	if err := p.subject.Execute(&buf, data); err != nil {
		return nil, notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}
	out.Subject = buf.String()

	buf.Reset()
	if err := p.text.Execute(&buf, data); err != nil {
		return nil, notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}
	out.Text = buf.String()

	if p.html != nil {
		buf.Reset()
		if err := p.html.Execute(&buf, data); err != nil {
			return nil, notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
		}
		out.HTML = buf.String()
	}

	return &out, nil
}

// InvitationData feeds TemplateInvitation.
type InvitationData struct {
	Email     string
	Role      string
	AcceptURL string
	ExpiresAt string
}

// AccountRegisteredData feeds TemplateAccountRegistered.
type AccountRegisteredData struct {
	Name       string
	Email      string
	Role       string
	FacilityID string
}

var builtin = map[string]Template{
	TemplateInvitation: {
		Subject: "You have been invited to the facility directory",
		Text: `You have been invited to join the facility directory{{if .Role}} as {{.Role}}{{end}}.

Open the link below to set up your account:
{{.AcceptURL}}
{{if .ExpiresAt}}
The invitation expires at {{.ExpiresAt}}.
{{end}}`,
		HTML: `<p>You have been invited to join the facility directory{{if .Role}} as <strong>{{.Role}}</strong>{{end}}.</p>
<p><a href="{{.AcceptURL}}">Set up your account</a></p>
{{if .ExpiresAt}}<p>The invitation expires at {{.ExpiresAt}}.</p>{{end}}`,
	},
	TemplateAccountRegistered: {
		Subject: "{{.Name}} finished registering",
		Text: `{{.Name}} <{{.Email}}> accepted your invitation and registered as {{.Role}}.
{{if .FacilityID}}Facility: {{.FacilityID}}
{{end}}`,
		HTML: `<p><strong>{{.Name}}</strong> &lt;{{.Email}}&gt; accepted your invitation and registered as {{.Role}}.</p>
{{if .FacilityID}}<p>Facility: {{.FacilityID}}</p>{{end}}`,
	},
}
