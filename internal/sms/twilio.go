// Package sms sends text messages through Twilio.
package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type Sender interface {
	Send(ctx context.Context, to, body string) error
}

type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	// WhatsAppFrom, when set, is used for E.164 numbers instead of SMS
	WhatsAppFrom string
}

type TwilioSender struct {
	client *twilio.RestClient
	cfg    Config
}

func NewTwilioSender(cfg Config) *TwilioSender {
	return &TwilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		cfg: cfg,
	}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetBody(body)
	if s.cfg.WhatsAppFrom != "" && strings.HasPrefix(to, "+") {
		params.SetTo("whatsapp:" + to)
		params.SetFrom("whatsapp:" + s.cfg.WhatsAppFrom)
	} else {
		params.SetTo(to)
		params.SetFrom(s.cfg.From)
	}

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send sms to %s: %w", to, err)
	}
	return nil
}
