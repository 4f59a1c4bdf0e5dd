package loop

import (
	"strings"
	"time"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

// RenderTemplate fills the outreach message template. Supported
// placeholders: {name}/{nome} for the contact name, {phone} for the
// phone, {niche} for the segment tag and {saudacao} for a time-of-day
// greeting.
func RenderTemplate(template string, contact *outreach.Contact, now time.Time) string {
	replacer := strings.NewReplacer(
		"{name}", strings.TrimSpace(contact.Name),
		"{nome}", strings.TrimSpace(contact.Name),
		"{phone}", contact.Phone,
		"{niche}", strings.TrimSpace(contact.Niche),
		"{saudacao}", greeting(now),
	)
	return replacer.Replace(template)
}

func greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Bom dia"
	case h < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}
