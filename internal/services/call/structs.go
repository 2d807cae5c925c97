package call

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/recording"
)

// Spoken replies owned by the orchestrator
const (
	MsgCallEnding          = "This call is ending."
	MsgTransferUnavailable = "I'm not able to transfer calls on this line right now, but I can take your information and have someone call you back."
	MsgTransferFailed      = "I wasn't able to connect you just now. Would you like me to take your information for a callback instead?"
	MsgTransferring        = "Transferring you now. Please hold."
	MsgGoodbye             = "Thanks for calling. Goodbye!"
	MsgToolFailed          = "Sorry, something went wrong on my end. Could you say that again?"
)

// Intent values recorded on the call log
const (
	IntentInventory = "inventory"
	IntentLead      = "lead"
	IntentStaff     = "staff"
	IntentTransfer  = "transfer"
)

// Finalization step names used in logs and metrics
const (
	StepStopRecording = "stop_recording"
	StepBilling       = "billing"
	StepLeadRecording = "lead_recording"
	StepCallLog       = "call_log"
	StepEnrichment    = "enrichment"
)

// Recorder is the recording controller seen by the orchestrator.
// *recording.Controller satisfies it.
type Recorder interface {
	Enabled() bool
	Start(ctx context.Context, sessionID, roomName string) *domain.RecordingHandle
	Stop(ctx context.Context, handle *domain.RecordingHandle) (recording.StopResult, error)
}

// CallStart describes a newly connected caller.
type CallStart struct {
	SessionID      string
	RoomName       string
	CallerPhone    string
	DialedNumber   string
	PlatformCallID string
}

// Bootstrap is what the conversational engine needs to run a session.
type Bootstrap struct {
	SessionID    string                   `json:"session_id"`
	TenantID     string                   `json:"tenant_id,omitempty"`
	TenantName   string                   `json:"tenant_name"`
	Greeting     string                   `json:"greeting"`
	Instructions string                   `json:"instructions"`
	Voice        string                   `json:"voice"`
	Temperature  float64                  `json:"temperature"`
	AfterHours   bool                     `json:"after_hours"`
	Tools        []map[string]interface{} `json:"tools"`
}

// Summary is the outcome of finalizing one call.
type Summary struct {
	SessionID       string
	TenantID        string
	Status          string
	DurationSeconds float64
	BillableMinutes int
	RecordingURL    string
	MinutesUsed     int
	Failed          []string
	EndedAt         time.Time
}

type searchInventoryArgs struct {
	Category  string      `json:"category"`
	Make      string      `json:"make"`
	MinPrice  json.Number `json:"min_price"`
	MaxPrice  json.Number `json:"max_price"`
	Condition string      `json:"condition"`
	Limit     json.Number `json:"limit"`
}

type listingDetailsArgs struct {
	ListingID string `json:"listing_id"`
}

type captureLeadArgs struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Interest      string `json:"interest"`
	Email         string `json:"email"`
	ListingID     string `json:"listing_id"`
	EquipmentType string `json:"equipment_type"`
}

type verifyStaffArgs struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

type queryInternalArgs struct {
	QueryType   string `json:"query_type"`
	ListingID   string `json:"listing_id"`
	StockNumber string `json:"stock_number"`
}

type reasonArgs struct {
	Reason string `json:"reason"`
}

// dollars reads a JSON number (or numeric string) as whole dollars.
func dollars(n json.Number) *int64 {
	if n == "" {
		return nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || f <= 0 {
		return nil
	}
	v := int64(f)
	return &v
}

func intArg(n json.Number) int {
	if n == "" {
		return 0
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return int(f)
}
