package devserver

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Mail kinds.
const (
	MailLoginCode    = "login_code"
	MailResetCode    = "reset_code"
	MailVerification = "verification"
)

// Mail is one captured message.
type Mail struct {
	To     string
	Kind   string
	Code   string
	Link   string
	SentAt time.Time
}

// Outbox records outgoing mail in memory and logs it, so a developer can
// read codes and links from the server output.
type Outbox struct {
	logger zerolog.Logger

	mu    sync.Mutex
	mails []Mail
}

// NewOutbox returns an empty outbox logging to logger.
func NewOutbox(logger zerolog.Logger) *Outbox {
	return &Outbox{logger: logger}
}

func (o *Outbox) send(m Mail) {
	o.mu.Lock()
	o.mails = append(o.mails, m)
	o.mu.Unlock()

	ev := o.logger.Info().Str("to", m.To).Str("kind", m.Kind)
	if m.Code != "" {
		ev = ev.Str("code", m.Code)
	}
	if m.Link != "" {
		ev = ev.Str("link", m.Link)
	}
	ev.Msg("mail sent")
}

// Last returns the newest mail of kind sent to address.
func (o *Outbox) Last(address, kind string) (Mail, bool) {
	address = normalizeEmail(address)
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.mails) - 1; i >= 0; i-- {
		if o.mails[i].To == address && o.mails[i].Kind == kind {
			return o.mails[i], true
		}
	}
	return Mail{}, false
}

// All returns a copy of every captured mail in send order.
func (o *Outbox) All() []Mail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Mail(nil), o.mails...)
}
