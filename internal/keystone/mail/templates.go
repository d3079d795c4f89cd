package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

// Template names.
const (
	TemplateWelcome         = "welcome"
	TemplatePasswordReset   = "password_reset"
	TemplatePasswordChanged = "password_changed"
)

var subjects = map[string]string{
	TemplateWelcome:         "Welcome to %s, please verify your email",
	TemplatePasswordReset:   "Reset your %s password",
	TemplatePasswordChanged: "Your %s password was changed",
}

// Renderer builds Messages from the embedded templates.
type Renderer struct {
	product string
	baseURL string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

func NewRenderer(product, baseURL string) (*Renderer, error) {
	html, err := htmltemplate.ParseFS(templateFiles, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("mail: parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFiles, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("mail: parse text templates: %w", err)
	}
	return &Renderer{
		product: product,
		baseURL: strings.TrimRight(baseURL, "/"),
		html:    html,
		text:    text,
	}, nil
}

type templateData struct {
	Product   string
	Name      string
	Link      string
	ExpiresIn string
}

// Welcome carries the email verification link.
func (r *Renderer) Welcome(to, name, token string, ttl time.Duration) (Message, error) {
	return r.render(TemplateWelcome, to, name, r.link("/verify-email", token), ttl)
}

// PasswordReset carries the reset link.
func (r *Renderer) PasswordReset(to, name, token string, ttl time.Duration) (Message, error) {
	return r.render(TemplatePasswordReset, to, name, r.link("/reset-password", token), ttl)
}

// PasswordChanged confirms a completed reset.
func (r *Renderer) PasswordChanged(to, name string) (Message, error) {
	return r.render(TemplatePasswordChanged, to, name, "", 0)
}

func (r *Renderer) link(path, token string) string {
	return r.baseURL + path + "?token=" + url.QueryEscape(token)
}

func (r *Renderer) render(name, to, recipient, link string, ttl time.Duration) (Message, error) {
	if recipient == "" {
		recipient = to
	}
	data := templateData{
		Product:   r.product,
		Name:      recipient,
		Link:      link,
		ExpiresIn: ttl.String(),
	}

	var text, html bytes.Buffer
	if err := r.text.ExecuteTemplate(&text, name+".txt.tmpl", data); err != nil {
		return Message{}, fmt.Errorf("mail: render %s text: %w", name, err)
	}
	if err := r.html.ExecuteTemplate(&html, name+".html.tmpl", data); err != nil {
		return Message{}, fmt.Errorf("mail: render %s html: %w", name, err)
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf(subjects[name], r.product),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
