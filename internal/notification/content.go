package notification

import (
	"context"
	"fmt"
	"log/slog"

	"correspondence/internal/domain"
	"correspondence/internal/store"
	"correspondence/internal/util"
)

type Content struct {
	EmailSubject         string
	EmailBody            string
	SmsBody              string
	ReminderEmailSubject string
	ReminderEmailBody    string
	ReminderSmsBody      string
}

// content picks the template variant for the recipient type, falling back to
// the generic variant and then to the default language, and fills in the
// sender text and party names.
func (o *Orchestrator) content(ctx context.Context, c domain.Correspondence, nr domain.NotificationRequest) (Content, error) {
	lang := c.Content.Language
	if lang == "" {
		lang = o.Opts.DefaultLanguage
	}
	templates, err := o.Store.GetTemplates(ctx, nr.Template, lang)
	if err != nil {
		return Content{}, err
	}
	if len(templates) == 0 && lang != o.Opts.DefaultLanguage {
		templates, err = o.Store.GetTemplates(ctx, nr.Template, o.Opts.DefaultLanguage)
		if err != nil {
			return Content{}, err
		}
	}
	tmpl, ok := pickTemplate(templates, domain.RecipientKind(c.Recipient))
	if !ok {
		return Content{}, fmt.Errorf("no notification template %q for language %s: %w", nr.Template, lang, domain.ErrNotFound)
	}

	vars := map[string]string{
		"sendersName":                 o.lookUpName(ctx, c.Sender),
		"correspondenceRecipientName": o.lookUpName(ctx, c.Recipient),
	}
	fill := func(template, token string) string {
		return util.RenderTemplate(util.ApplyTextToken(template, token), vars)
	}
	return Content{
		EmailSubject:         fill(tmpl.EmailSubject, nr.EmailSubject),
		EmailBody:            fill(tmpl.EmailBody, nr.EmailBody),
		SmsBody:              fill(tmpl.SmsBody, nr.SmsBody),
		ReminderEmailSubject: fill(tmpl.ReminderEmailSubject, nr.ReminderEmailSubject),
		ReminderEmailBody:    fill(tmpl.ReminderEmailBody, nr.ReminderEmailBody),
		ReminderSmsBody:      fill(tmpl.ReminderSmsBody, nr.ReminderSmsBody),
	}, nil
}

func pickTemplate(templates []store.TemplateContent, kind domain.RecipientType) (store.TemplateContent, bool) {
	var generic *store.TemplateContent
	for i := range templates {
		switch templates[i].RecipientType {
		case kind:
			if kind != domain.RecipientUnknown {
				return templates[i], true
			}
			generic = &templates[i]
		case domain.RecipientUnknown:
			generic = &templates[i]
		}
	}
	if generic != nil {
		return *generic, true
	}
	return store.TemplateContent{}, false
}

// lookUpName never fails the order; a missing name renders empty.
func (o *Orchestrator) lookUpName(ctx context.Context, party string) string {
	if o.Names == nil || party == "" {
		return ""
	}
	name, err := o.Names.LookUpName(ctx, domain.PartyIdentifier(party))
	if err != nil {
		slog.Warn("party name lookup failed", "err", err)
		return ""
	}
	return name
}
