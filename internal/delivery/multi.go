package delivery

import (
	"context"
	"errors"

	"github.com/sumitx99/ethical-web-watchdog/internal/message"
)

// Multi combines transports. An observer on any of them counts.
type Multi []Messenger

func (m Multi) Ping(ctx context.Context, tabID int) error {
	var errs []error
	for _, t := range m {
		err := t.Ping(ctx, tabID)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrNoObserver
	}
	return errors.Join(errs...)
}

// Send tries every transport and succeeds if at least one accepted msg.
func (m Multi) Send(ctx context.Context, tabID int, msg message.Envelope) error {
	var errs []error
	sent := false
	for _, t := range m {
		if err := t.Send(ctx, tabID, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		sent = true
	}
	if sent {
		return nil
	}
	if len(errs) == 0 {
		return ErrNoObserver
	}
	return errors.Join(errs...)
}
