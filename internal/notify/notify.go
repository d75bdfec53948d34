package notify

import (
	"fmt"
	"sort"
	"strings"
)

// Message templates. Params are interpolated as "{key}".
const (
	TemplateWaitlistReady      = "waitlist_ready"
	TemplateReservationExpired = "reservation_expired"
)

var templates = map[string]string{
	TemplateWaitlistReady:      "Hi {guest_name}! A karaoke room just opened up for your party of {party_size}. Come to the front desk within 15 minutes to claim it.",
	TemplateReservationExpired: "Hi {guest_name}, your hold on {room_name} expired because payment was not completed in time. The slot has been released.",
}

// Render expands a template with params. Unknown templates fall back to
// a key/value dump so a misconfigured template never loses the message.
func Render(template string, params map[string]string) string {
	text, ok := templates[template]
	if !ok {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		fmt.Fprintf(&b, "[%s]", template)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, params[k])
		}
		return b.String()
	}
	for k, v := range params {
		text = strings.ReplaceAll(text, "{"+k+"}", v)
	}
	return text
}
