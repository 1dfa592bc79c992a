package dialog

import "fmt"

type TextType string

const (
	TextPublished                TextType = "published"
	TextConfirmed                TextType = "confirmed"
	TextNotificationOrderCreated TextType = "notification_order_created"
	TextNotificationSent         TextType = "notification_sent"
	TextNotificationReminderSent TextType = "notification_reminder_sent"
	TextDownloadStarted          TextType = "download_started"
)

var texts = map[string]map[TextType]string{
	"nb": {
		TextPublished:                "Melding publisert.",
		TextConfirmed:                "Melding bekreftet.",
		TextNotificationOrderCreated: "Varslingsordre opprettet.",
		TextNotificationSent:         "Varsel om mottatt melding sendt til %s på %s.",
		TextNotificationReminderSent: "Revarsel om mottatt melding sendt til %s på %s.",
		TextDownloadStarted:          "Startet nedlastning av vedlegg %s",
	},
	"nn": {
		TextPublished:                "Melding publisert.",
		TextConfirmed:                "Melding stadfesta.",
		TextNotificationOrderCreated: "Varslingsordre oppretta.",
		TextNotificationSent:         "Varsel om motteken melding sendt til %s på %s.",
		TextNotificationReminderSent: "Revarsel om motteken melding sendt til %s på %s.",
		TextDownloadStarted:          "Starta nedlasting av vedlegg %s",
	},
	"en": {
		TextPublished:                "Message published.",
		TextConfirmed:                "Message confirmed.",
		TextNotificationOrderCreated: "Notification order created.",
		TextNotificationSent:         "Notification about received message sent to %s on %s.",
		TextNotificationReminderSent: "Reminder notification about received message sent to %s on %s.",
		TextDownloadStarted:          "Started downloading attachment %s",
	},
}

// Describe renders the activity text in the correspondence language and the
// other supported languages, primary language first.
func Describe(t TextType, language string, tokens ...string) []string {
	order := []string{"nb", "nn", "en"}
	if _, ok := texts[language]; ok {
		order = append([]string{language}, without(order, language)...)
	}
	args := make([]any, 0, len(tokens))
	for _, tok := range tokens {
		args = append(args, tok)
	}

	out := make([]string, 0, len(order))
	for _, lang := range order {
		format, ok := texts[lang][t]
		if !ok {
			continue
		}
		out = append(out, lang+":"+render(format, args))
	}
	return out
}

func render(format string, args []any) string {
	n := 0
	for i := 0; i+1 < len(format); i++ {
		if format[i] == '%' && format[i+1] == 's' {
			n++
		}
	}
	for len(args) < n {
		args = append(args, "")
	}
	return fmt.Sprintf(format, args[:n]...)
}

func without(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
