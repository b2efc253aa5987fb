package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var titles = map[domain.NotificationType]string{
	domain.NotificationSubscriptionCreated:  "Subscription Confirmed",
	domain.NotificationSubscriptionExpiring: "Subscription Expiring Soon",
	domain.NotificationSubscriptionExpired:  "Subscription Expired",
	domain.NotificationSubscriptionRenewed:  "Subscription Renewed",
}

// MessageData is the template input for a notification message.
type MessageData struct {
	PlanTitle string
	StartDate time.Time
	EndDate   time.Time
	Now       time.Time
}

// Renderer renders notification titles and messages from embedded templates.
type Renderer struct {
	templates map[domain.NotificationType]*template.Template
}

// NewRenderer creates a renderer with one template per notification type.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":    titleCase,
		"date":     formatDate,
		"daysLeft": daysLeft,
	}

	r := &Renderer{templates: make(map[domain.NotificationType]*template.Template, len(titles))}
	for typ := range titles {
		filename := fmt.Sprintf("templates/%s.tmpl", typ)
		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(string(typ)).Funcs(funcMap).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", typ, err)
		}
		r.templates[typ] = tmpl
	}

	return r, nil
}

// Render returns the title and message for a notification of type typ.
func (r *Renderer) Render(typ domain.NotificationType, data MessageData) (title, message string, err error) {
	tmpl, ok := r.templates[typ]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", typ, err)
	}

	return titles[typ], strings.TrimSpace(buf.String()), nil
}

var titleCaser = cases.Title(language.English, cases.NoLower)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006")
}

// daysLeft rounds the remaining time up to whole days.
func daysLeft(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
