package tenant

import (
	"strings"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/config"
)

const defaultDealerGreeting = "Thanks for calling {{.Name}}! How can I help you find the right equipment today?"

// SelectSettings builds the typed per-call settings for a resolution.
// Greeting and instruction strings may still contain {{.Name}} placeholders.
func SelectSettings(res Resolution, defaults config.SessionSettings, hours HoursPredicate, now time.Time) config.SessionSettings {
	if res.IsGlobal() {
		s := defaults
		s.TenantID = ""
		s.TransferEnabled = false
		s.TransferNumber = ""
		return s
	}

	t := res.Tenant
	open := hours == nil || hours.IsOpen(t.BusinessHours, now)

	s := config.SessionSettings{
		TenantID:        t.ID,
		TenantName:      t.DisplayName,
		Voice:           firstNonEmpty(t.Voice, defaults.Voice),
		Temperature:     defaults.Temperature,
		Greeting:        firstNonEmpty(t.Greeting, defaultDealerGreeting),
		Instructions:    joinInstructions(defaults.Instructions, t.Instructions),
		AfterHours:      !open,
		TransferEnabled: t.TransferEnabled && open,
		TransferNumber:  t.TransferNumber,
	}
	if t.Temperature > 0 {
		s.Temperature = t.Temperature
	}
	if s.TenantName == "" {
		s.TenantName = defaults.TenantName
	}

	if !open {
		s.Greeting = firstNonEmpty(t.AfterHoursGreeting, config.DefaultAfterHoursGreeting)
		s.Instructions = joinInstructions(s.Instructions, firstNonEmpty(t.AfterHoursInstructions, config.DefaultAfterHoursNote))
	}
	return s
}

func joinInstructions(base, extra string) string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return base
	}
	return base + "\n\n" + extra
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
