package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.params = append(f.params, params)
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestClient_SendMessage(t *testing.T) {
	api := &fakeCreator{}
	c := newClient(api, "token", "+15550000")

	if err := c.SendMessage(context.Background(), "15551111", "Hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := api.params[0]
	if *p.To != "whatsapp:+15551111" || *p.From != "whatsapp:+15550000" || *p.Body != "Hello" {
		t.Errorf("unexpected params to=%s from=%s body=%s", *p.To, *p.From, *p.Body)
	}
}

func TestClient_SendMedia(t *testing.T) {
	api := &fakeCreator{}
	c := newClient(api, "token", "whatsapp:+15550000")

	if err := c.SendMedia(context.Background(), "+15551111", "https://example.com/media/a.mp4", "Flop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := api.params[0]
	if p.MediaUrl == nil || len(*p.MediaUrl) != 1 || (*p.MediaUrl)[0] != "https://example.com/media/a.mp4" {
		t.Errorf("unexpected media url %v", p.MediaUrl)
	}
	if *p.From != "whatsapp:+15550000" || *p.Body != "Flop" {
		t.Errorf("unexpected params from=%s body=%s", *p.From, *p.Body)
	}
}

func TestClient_SendError(t *testing.T) {
	c := newClient(&fakeCreator{err: errors.New("rate limited")}, "token", "+1")
	if err := c.SendMessage(context.Background(), "2", "x"); err == nil {
		t.Error("expected error")
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("t")); err == nil {
		t.Error("expected error without from number")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("t"), WithFromWhats("+1")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClient_ValidateSignatureRejectsGarbage(t *testing.T) {
	c := newClient(&fakeCreator{}, "token", "+1")
	if c.ValidateSignature("https://example.com/webhooks/twilio", map[string]string{"Body": "hi"}, "bogus") {
		t.Error("expected invalid signature")
	}
}

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("unexpected messages %+v", mock.SentMessages)
	}
}
