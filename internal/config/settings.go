package config

// Persistence modes
const (
	PersistencePostgres = "postgres"
	PersistenceMemory   = "memory"
)

const (
	DefaultRecordingPathPrefix  = "call-recordings/"
	DefaultRecordingExtension   = ".ogg"
	DefaultMinEnrichmentSeconds = 5
	DefaultLockoutThreshold     = 3
	DefaultLockoutMinutes       = 15
	DefaultVoice                = "alloy"
	DefaultTemperature          = 0.7
	DefaultMarketplaceName      = "Axles AI"
)

// DefaultGreeting is spoken on the main marketplace line.
const DefaultGreeting = "Hello! Thanks for calling Axles AI, your marketplace for trucks, trailers, and heavy equipment. How can I help you find what you're looking for today?"

// DefaultAfterHoursGreeting is spoken on dealer lines outside business hours when the dealer has none configured.
const DefaultAfterHoursGreeting = "Thanks for calling {{.Name}}. We're closed right now, but I can help you look through inventory or take your information so the team can call you back."

// DefaultInstructions is the persona template shared by all lines. Dealer
// instructions are appended to it.
const DefaultInstructions = `You are a helpful AI assistant for {{.Name}}, a seller of trucks, trailers, and heavy equipment.

Your role is to:
1. Answer questions about available inventory (trucks, trailers, heavy equipment)
2. Help callers find equipment that matches their needs
3. Provide pricing and specification information
4. Capture lead information for follow-up
5. Transfer calls to a person when requested and available

Guidelines:
- Be friendly, professional, and knowledgeable about commercial trucks and trailers
- Ask clarifying questions to understand what the caller is looking for
- When discussing equipment, mention key specs like year, make, model, price, and condition
- If a caller is interested in a specific unit, offer to capture their information for a callback
- Keep responses concise for phone conversation (2-3 sentences max)
- Staff members may verify themselves with their name and PIN to ask about internal data

Common equipment types:
- Trailers: flatbed, dry van, reefer, lowboy, drop deck, dump, tanker
- Trucks: semi trucks, day cabs, sleeper cabs, box trucks, dump trucks
- Heavy equipment: excavators, loaders, bulldozers, cranes`

// DefaultAfterHoursNote is appended to the instructions when the line is closed.
const DefaultAfterHoursNote = `The business is currently closed. Do not offer live transfers; offer to capture the caller's information for a callback instead.`

// SessionSettings is the typed per-call configuration selected at call start.
type SessionSettings struct {
	TenantID        string  `json:"tenant_id,omitempty"` // empty on the global line
	TenantName      string  `json:"tenant_name"`
	Voice           string  `json:"voice"`
	Temperature     float64 `json:"temperature"`
	Greeting        string  `json:"greeting"`
	Instructions    string  `json:"instructions"`
	AfterHours      bool    `json:"after_hours"`
	TransferEnabled bool    `json:"transfer_enabled"`
	TransferNumber  string  `json:"transfer_number,omitempty"`
}

// DefaultSessionSettings returns the global marketplace settings.
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{
		TenantName:   DefaultMarketplaceName,
		Voice:        DefaultVoice,
		Temperature:  DefaultTemperature,
		Greeting:     DefaultGreeting,
		Instructions: DefaultInstructions,
	}
}

// IsGlobal reports whether these settings belong to the main marketplace line.
func (s SessionSettings) IsGlobal() bool {
	return s.TenantID == ""
}
