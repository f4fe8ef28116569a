// Package messaging provides the transport gateway abstraction, its Telegram,
// WhatsApp and Twilio implementations, and the dispatcher that routes inbound
// events to the quiz and guided-input flows.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for event channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// Error variables shared by the transports
var (
	ErrServiceStopped  = errors.New("messaging service stopped")
	ErrMediaNotFound   = errors.New("media file not found")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrMediaURLMissing = errors.New("media base URL not configured")
)

// Service defines a pluggable message delivery abstraction.
// It supports sending text and media, and provides a channel of inbound events.
type Service interface {
	// SendText sends a text message, optionally with inline choices or a reply keyboard.
	SendText(ctx context.Context, to string, text string, opts *models.SendOptions) error

	// SendMedia sends a media item with a caption.
	SendMedia(ctx context.Context, to string, media models.MediaRef, caption string) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Events returns a channel of inbound user interactions.
	Events() <-chan models.Event
}

// ChoiceAcknowledger is implemented by transports that can update the message
// whose inline choice was pressed.
type ChoiceAcknowledger interface {
	AcknowledgeChoice(ctx context.Context, evt models.Event, text string) error
}

// CheckMedia reports whether media refers to a readable local file.
func CheckMedia(media models.MediaRef) error {
	if media.IsZero() {
		return ErrMediaNotFound
	}
	info, err := os.Stat(string(media))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMediaNotFound, media, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrMediaNotFound, media)
	}
	return nil
}

// SendMediaBestEffort sends media and only logs failures. Missing files are
// skipped without calling the transport.
func SendMediaBestEffort(ctx context.Context, svc Service, to string, media models.MediaRef, caption string) {
	if media.IsZero() {
		return
	}
	if err := CheckMedia(media); err != nil {
		slog.Warn("Media unavailable, continuing without it", "to", to, "media", media, "error", err)
		return
	}
	if err := svc.SendMedia(ctx, to, media, caption); err != nil {
		slog.Warn("Media send failed, continuing without it", "to", to, "media", media, "error", err)
		return
	}
	slog.Debug("Media sent", "to", to, "media", media)
}

// emitEvent pushes evt into ch, dropping it if the channel stays full.
func emitEvent(ch chan<- models.Event, evt models.Event, service string) {
	select {
	case ch <- evt:
		slog.Debug(service+" inbound event forwarded", "userID", evt.UserID, "kind", evt.Kind)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(service+" events channel blocked, dropping event", "userID", evt.UserID, "kind", evt.Kind, "timeout", DefaultChannelTimeout)
	}
}
