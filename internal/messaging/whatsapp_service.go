package messaging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/HandCoach/internal/models"
	"github.com/BTreeMap/HandCoach/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
// WhatsApp has no inline buttons here, so choices are rendered as text and
// typed replies are mapped back through a ChoiceTracker. User IDs are phone
// numbers without the leading '+'.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // access to underlying client for event handling
	choices  *ChoiceTracker
	events   chan models.Event
	done     chan struct{}
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client:  client,
		choices: NewChoiceTracker(),
		events:  make(chan models.Event, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}

	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// Start registers the inbound message handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Connected:
			slog.Info("WhatsAppService connected")
		case *events.Disconnected:
			slog.Warn("WhatsAppService disconnected")
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop disconnects and closes the events channel.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	close(s.events)
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// Events returns the channel of inbound events.
func (s *WhatsAppService) Events() <-chan models.Event {
	return s.events
}

// SendText sends body with any choices or keyboard labels appended as text.
func (s *WhatsAppService) SendText(ctx context.Context, to, text string, opts *models.SendOptions) error {
	to = canonicalPhone(to)
	if to == "" {
		return ErrInvalidUserID
	}
	body := renderTextChoices(text, opts)
	slog.Debug("WhatsAppService SendText invoked", "to", to, "body_length", len(body))
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService SendText error", "error", err, "to", to)
		return err
	}
	var offered []models.Choice
	if opts != nil {
		offered = opts.Choices
	}
	s.choices.Offer(to, offered)
	return nil
}

// SendMedia uploads a local video with caption.
func (s *WhatsAppService) SendMedia(ctx context.Context, to string, media models.MediaRef, caption string) error {
	to = canonicalPhone(to)
	if to == "" {
		return ErrInvalidUserID
	}
	if err := CheckMedia(media); err != nil {
		return err
	}
	return s.client.SendVideo(ctx, to, string(media), caption)
}

// AcknowledgeChoice confirms a typed choice with a plain message.
func (s *WhatsAppService) AcknowledgeChoice(ctx context.Context, evt models.Event, text string) error {
	return s.SendText(ctx, evt.UserID, text, nil)
}

// handleIncomingMessage turns a direct text message into an event.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	var text string
	if evt.Message.Conversation != nil {
		text = evt.Message.GetConversation()
	} else if evt.Message.ExtendedTextMessage != nil {
		text = evt.Message.ExtendedTextMessage.GetText()
	}
	if text == "" {
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	from := canonicalPhone(evt.Info.Sender.User)
	s.deliver(s.choices.classifyText(from, text, evt.Info.Timestamp.Unix()))
}

func (s *WhatsAppService) deliver(evt models.Event) {
	select {
	case <-s.done:
		slog.Debug("WhatsAppService stopped, dropping event", "userID", evt.UserID)
	default:
		emitEvent(s.events, evt, "WhatsAppService")
	}
}

// canonicalPhone strips formatting so "+1 (555) 010-0000" and "15550100000" are the same user.
func canonicalPhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
