// Package message provides the overlay chat message and notice entities.
package message

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/onair/internal/domain/fault"
)

// Roles accepted from the upstream producer.
const (
	RoleAssistant = "assistant"
	RoleBrian     = "brian"
)

// Message is a chat line shown on the overlay.
type Message struct {
	ID           int64     `mapstructure:"-" json:"id,omitempty"`
	Text         string    `mapstructure:"text" json:"text" validate:"required,max=2000"`
	Role         string    `mapstructure:"role" json:"role" default:"assistant"`
	Imoji        string    `mapstructure:"imoji" json:"imoji,omitempty"`
	OverlayDate  string    `mapstructure:"overlay_date" json:"overlay_date,omitempty"`
	BroadcastYMD string    `mapstructure:"broadcast_ymd" json:"broadcast_ymd,omitempty"`
	Seq          int       `mapstructure:"seq" json:"seq,omitempty" validate:"gte=0"`
	Priority     int       `mapstructure:"priority" json:"priority" default:"10" validate:"gte=0,lte=100"`
	Type         string    `mapstructure:"type" json:"type" default:"chat"`
	SessionID    string    `mapstructure:"session_id" json:"session_id" default:"live"`
	Repeatable   string    `mapstructure:"repeatable" json:"repeatable" default:"N" validate:"oneof=Y N"`
	WithPromo    string    `mapstructure:"with_promo" json:"with_promo" default:"N" validate:"oneof=Y N"`
	Timestamp    time.Time `mapstructure:"-" json:"timestamp"`
}

// Notice is a ticker line for the overlay.
type Notice struct {
	ID     int64  `json:"id"`
	Text   string `json:"text" validate:"required,max=500"`
	Slot   string `json:"slot" default:"top"`
	Active bool   `json:"is_active"`
}

var validate = validator.New()

// MapRole normalizes the producer role; anything but "brian" is the assistant.
func MapRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), RoleBrian) {
		return RoleBrian
	}
	return RoleAssistant
}

// Decode builds a Message from a decoded JSON object.
// Missing optional fields take their defaults; a missing text is a malformed payload.
func Decode(raw map[string]any) (*Message, error) {
	if raw == nil {
		return nil, fault.Malformed("empty message")
	}

	var msg Message
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &msg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decode message"), fault.ErrMalformedPayload)
	}

	if err := defaults.Set(&msg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	msg.Text = strings.TrimSpace(msg.Text)
	msg.Role = MapRole(msg.Role)
	msg.Repeatable = strings.ToUpper(msg.Repeatable)
	msg.WithPromo = strings.ToUpper(msg.WithPromo)

	if err := validate.Struct(&msg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "message validation failed"), fault.ErrMalformedPayload)
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return &msg, nil
}

// NewNotice validates a notice and applies defaults.
func NewNotice(text, slot string) (*Notice, error) {
	n := &Notice{Text: strings.TrimSpace(text), Slot: strings.TrimSpace(slot)}
	if err := defaults.Set(n); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validate.Struct(n); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "notice validation failed"), fault.ErrMalformedPayload)
	}
	return n, nil
}

// Preview returns at most n runes of the text, for log lines.
func (m *Message) Preview(n int) string {
	r := []rune(m.Text)
	if len(r) <= n {
		return m.Text
	}
	return string(r[:n]) + "..."
}
