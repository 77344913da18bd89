package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

type alertEmailData struct {
	Brand   string
	Subject string
	Lines   []string
	SentAt  string
}

func renderAlert(brand, subject, body string, at time.Time) (string, error) {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return renderEmailTemplate("alert.html", alertEmailData{
		Brand:   brand,
		Subject: subject,
		Lines:   lines,
		SentAt:  at.Format(time.RFC1123),
	})
}

func renderEmailTemplate(name string, data any) (string, error) {
	tmpl, err := template.New(name).ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
