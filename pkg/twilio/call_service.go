package twilio

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

var ErrDisabled = errors.New("twilio call service is disabled")

// callUpdater is satisfied by *api.ApiService.
type callUpdater interface {
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

// CallService redirects live Twilio calls. It is used to dial the transfer
// leg of a SIP call that entered LiveKit through a Twilio trunk.
type CallService struct {
	calls   callUpdater
	enabled bool
}

// NewCallService creates a call service. If accountSID or authToken is empty, the service is disabled.
func NewCallService(accountSID, authToken string) *CallService {
	if accountSID == "" || authToken == "" {
		logger.Base().Warn("Twilio credentials not provided, call transfer disabled")
		return &CallService{}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return &CallService{calls: client.Api, enabled: true}
}

// IsEnabled returns whether the service has credentials
func (s *CallService) IsEnabled() bool {
	return s != nil && s.enabled
}

// DialTransfer replaces the call's TwiML with a <Dial> to destination.
// The Twilio SDK has no context support; ctx is only checked before the request.
func (s *CallService) DialTransfer(ctx context.Context, callSID, destination string) error {
	if !s.IsEnabled() {
		return ErrDisabled
	}
	if callSID == "" {
		return errors.New("call sid required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	twiml, err := DialTwiML(destination)
	if err != nil {
		return err
	}

	params := &api.UpdateCallParams{}
	params.SetTwiml(twiml)

	call, err := s.calls.UpdateCall(callSID, params)
	if err != nil {
		return fmt.Errorf("failed to update twilio call %s: %w", callSID, err)
	}

	status := ""
	if call != nil && call.Status != nil {
		status = *call.Status
	}
	logger.Base().Info("Twilio call redirected to transfer destination",
		zap.String("call_sid", callSID),
		zap.String("destination", destination),
		zap.String("status", status))
	return nil
}

// DialTwiML renders <Response><Dial>destination</Dial></Response>.
func DialTwiML(destination string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("<Response><Dial>")
	if err := xml.EscapeText(&buf, []byte(destination)); err != nil {
		return "", fmt.Errorf("failed to render twiml: %w", err)
	}
	buf.WriteString("</Dial></Response>")
	return buf.String(), nil
}
