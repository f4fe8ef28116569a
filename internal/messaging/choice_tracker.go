package messaging

import (
	"strconv"
	"strings"
	"sync"

	"github.com/BTreeMap/HandCoach/internal/models"
)

// ChoiceTracker remembers the inline choices last offered to each user on
// transports without native buttons, so a typed reply can be turned back into
// a button event.
type ChoiceTracker struct {
	mu      sync.Mutex
	pending map[string][]models.Choice
}

// NewChoiceTracker creates an empty tracker.
func NewChoiceTracker() *ChoiceTracker {
	return &ChoiceTracker{pending: make(map[string][]models.Choice)}
}

// Offer records the choices just sent to userID. Sending a message without
// choices clears whatever was pending.
func (ct *ChoiceTracker) Offer(userID string, choices []models.Choice) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if len(choices) == 0 {
		delete(ct.pending, userID)
		return
	}
	ct.pending[userID] = append([]models.Choice(nil), choices...)
}

// Resolve matches reply against userID's pending choices by the label's
// leading key ("A" for "A) Call"), the full label, or the 1-based position.
func (ct *ChoiceTracker) Resolve(userID, reply string) (models.Choice, bool) {
	reply = strings.ToLower(strings.TrimSpace(reply))
	if reply == "" {
		return models.Choice{}, false
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()
	choices := ct.pending[userID]
	for i, c := range choices {
		label := strings.ToLower(c.Label)
		key, _, _ := strings.Cut(label, ")")
		if reply == strings.TrimSpace(key) || reply == label || reply == strconv.Itoa(i+1) {
			return c, true
		}
	}
	return models.Choice{}, false
}

// classifyText turns a raw inbound text from a text-only transport into an event.
func (ct *ChoiceTracker) classifyText(userID, text string, ts int64) models.Event {
	if name, ok := parseCommand(text); ok {
		return models.Event{Kind: models.EventCommand, UserID: userID, Text: name, Time: ts}
	}
	if c, ok := ct.Resolve(userID, text); ok {
		return models.Event{Kind: models.EventButton, UserID: userID, Text: c.Code, Time: ts}
	}
	return models.Event{Kind: models.EventText, UserID: userID, Text: text, Time: ts}
}

// parseCommand extracts "start" from "/start" or "/start@SomeBot args".
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", false
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return "", false
	}
	cmd, _, _ := strings.Cut(name[0], "@")
	return strings.ToLower(cmd), cmd != ""
}

// renderTextChoices appends choices and reply-keyboard labels to body for
// transports that cannot show buttons.
func renderTextChoices(body string, opts *models.SendOptions) string {
	if opts == nil {
		return body
	}
	var b strings.Builder
	b.WriteString(body)
	switch {
	case len(opts.Choices) > 0:
		b.WriteString("\n")
		for _, c := range opts.Choices {
			b.WriteString("\n")
			b.WriteString(c.Label)
		}
		b.WriteString("\n\n(Reply with the letter of your choice)")
	case len(opts.ReplyKeyboard) > 0:
		var labels []string
		for _, row := range opts.ReplyKeyboard {
			labels = append(labels, row...)
		}
		b.WriteString("\n\nReply with: ")
		b.WriteString(strings.Join(labels, " | "))
	}
	return b.String()
}
