package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/HandCoach/internal/models"
	"github.com/BTreeMap/HandCoach/internal/twiliowhatsapp"
)

// TwilioSignatureHeader carries the HMAC signature of an inbound webhook.
const TwilioSignatureHeader = "X-Twilio-Signature"

// emptyTwiML acknowledges a webhook without sending a reply.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithMediaBaseURL maps local media under dir to public URLs below baseURL.
func WithMediaBaseURL(baseURL, dir string) TwilioOption {
	return func(s *TwilioService) {
		s.mediaBaseURL = strings.TrimRight(baseURL, "/")
		s.mediaDir = dir
	}
}

// WithSignatureValidation rejects webhooks whose signature does not match
// webhookURL, the public URL configured in the Twilio console.
func WithSignatureValidation(v twiliowhatsapp.SignatureValidator, webhookURL string) TwilioOption {
	return func(s *TwilioService) {
		s.validator = v
		s.webhookURL = webhookURL
	}
}

// TwilioService implements Service using the Twilio API. Outbound messages go
// through the REST client; inbound ones arrive on TwilioWebhookHandler.
type TwilioService struct {
	client       twiliowhatsapp.TwilioWhatsAppSender
	validator    twiliowhatsapp.SignatureValidator
	webhookURL   string
	mediaBaseURL string
	mediaDir     string
	choices      *ChoiceTracker
	events       chan models.Event
	done         chan struct{}
	mu           sync.RWMutex
	stopped      bool
}

// NewTwilioService creates a new TwilioService wrapping client.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		client:  client,
		choices: NewChoiceTracker(),
		events:  make(chan models.Event, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Debug("TwilioService created", "media_urls", s.mediaBaseURL != "", "signature_validation", s.validator != nil)
	return s
}

// ValidateAndCanonicalizeRecipient strips non-digits and requires at least 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical := canonicalPhone(recipient)
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in %q", ErrInvalidUserID, recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("%w: %q is too short (minimum 6 digits required)", ErrInvalidUserID, canonical)
	}
	return canonical, nil
}

// Start is a no-op; inbound messages arrive through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the events channel. Later webhooks are acknowledged and dropped.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.events)
	slog.Info("TwilioService stopped and channels closed")
	return nil
}

// Events returns the channel of inbound events.
func (s *TwilioService) Events() <-chan models.Event {
	return s.events
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// SendText sends body with choices or keyboard labels appended as text.
func (s *TwilioService) SendText(ctx context.Context, to, text string, opts *models.SendOptions) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, renderTextChoices(text, opts)); err != nil {
		return err
	}
	var offered []models.Choice
	if opts != nil {
		offered = opts.Choices
	}
	s.choices.Offer(canonicalTo, offered)
	return nil
}

// SendMedia sends the public URL of a local media file.
func (s *TwilioService) SendMedia(ctx context.Context, to string, media models.MediaRef, caption string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	mediaURL, err := s.MediaURL(media)
	if err != nil {
		return err
	}
	return s.client.SendMedia(ctx, canonicalTo, mediaURL, caption)
}

// AcknowledgeChoice confirms a typed choice with a plain message.
func (s *TwilioService) AcknowledgeChoice(ctx context.Context, evt models.Event, text string) error {
	return s.SendText(ctx, evt.UserID, text, nil)
}

// MediaURL maps a file under the media directory to its public URL.
func (s *TwilioService) MediaURL(media models.MediaRef) (string, error) {
	if s.mediaBaseURL == "" {
		return "", ErrMediaURLMissing
	}
	if err := CheckMedia(media); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.mediaDir, string(media))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the media directory", ErrMediaNotFound, media)
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.mediaBaseURL + "/" + strings.Join(segments, "/"), nil
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits them
// as events.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !s.validator.ValidateSignature(s.webhookURL, params, r.Header.Get(TwilioSignatureHeader)) {
			slog.Warn("Twilio webhook signature rejected", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := canonicalPhone(r.PostFormValue("From"))
	body := r.PostFormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	slog.Debug("Inbound WhatsApp message from Twilio", "from", from, "body_length", len(body))

	s.safeEmitEvent(s.choices.classifyText(from, body, time.Now().Unix()))

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, emptyTwiML)
}

// safeEmitEvent pushes evt unless the service has stopped.
func (s *TwilioService) safeEmitEvent(evt models.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound event (service stopped)", "userID", evt.UserID)
		return
	}
	emitEvent(s.events, evt, "TwilioService")
}
