package prompts

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/AxlesAI/axles-voice-service/internal/config"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"go.uber.org/zap"
)

// Rendered is what the voice engine receives at session start.
type Rendered struct {
	Greeting     string `json:"greeting"`
	Instructions string `json:"instructions"`
}

type templateData struct {
	Name        string
	CallerPhone string
}

// Render fills the greeting and instruction templates of settings and adds
// the call-level blocks (first message, caller number, transfer availability).
func Render(settings config.SessionSettings, callerPhone string) Rendered {
	data := templateData{Name: settings.TenantName, CallerPhone: callerPhone}
	if data.Name == "" {
		data.Name = config.DefaultMarketplaceName
	}

	greeting := renderTemplate("greeting", settings.Greeting, data)
	if greeting == "" {
		greeting = PromptFallbackGreeting
	}

	transfer := PromptTransferUnavailable
	if settings.TransferEnabled && settings.TransferNumber != "" {
		transfer = PromptTransferAvailable
	}

	var caller string
	if callerPhone != "" {
		caller = fmt.Sprintf(PromptCallerNumber, callerPhone)
	}

	return Rendered{
		Greeting: greeting,
		Instructions: joinBlocks(
			renderTemplate("instructions", settings.Instructions, data),
			fmt.Sprintf(PromptInitialScriptStrict, greeting),
			PromptGreetingRepetitionPrevention,
			PromptPhoneConversationRules,
			PromptFunctionCallGuide,
			transfer,
			caller,
		),
	}
}

func renderTemplate(name, tmplStr string, data templateData) string {
	if tmplStr == "" {
		return ""
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		logger.Base().Warn("Invalid prompt template, substituting variables", zap.String("template", name), zap.Error(err))
		return replaceVariables(tmplStr, data)
	}

	var result strings.Builder
	if err := tmpl.Execute(&result, data); err != nil {
		return replaceVariables(tmplStr, data)
	}
	return result.String()
}

func replaceVariables(tmpl string, data templateData) string {
	r := strings.ReplaceAll(tmpl, "{{.Name}}", data.Name)
	return strings.ReplaceAll(r, "{{.CallerPhone}}", data.CallerPhone)
}

// joinBlocks cleans and joins multiple prompt blocks with double newlines.
// It trims whitespace from each block and skips empty ones.
func joinBlocks(blocks ...string) string {
	var validBlocks []string
	for _, b := range blocks {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			validBlocks = append(validBlocks, trimmed)
		}
	}
	return strings.Join(validBlocks, "\n\n")
}
