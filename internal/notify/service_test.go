package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestNotifyConfirmation_Booked(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, nil)

	err := svc.NotifyConfirmation(context.Background(), Confirmation{
		Kind:         ConfirmationBooked,
		Email:        " jane@example.com ",
		ProviderName: "Ada Lovelace",
		When:         "12/01/2024, 10:00 AM",
		Reason:       "checkup",
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Equal(t, "Your appointment is confirmed", msg.Subject)
	assert.True(t, strings.Contains(msg.Body, "Ada Lovelace"))
	assert.True(t, strings.Contains(msg.Body, "Reason: checkup"))
}

func TestNotifyConfirmation_Cancelled(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, nil)

	require.NoError(t, svc.NotifyConfirmation(context.Background(), Confirmation{
		Kind:  ConfirmationCancelled,
		Email: "jane@example.com",
	}))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "your provider has been canceled")
}

func TestNotifyConfirmation_SkipsUndeliverable(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, nil)

	require.NoError(t, svc.NotifyConfirmation(context.Background(), Confirmation{Kind: ConfirmationBooked, Email: "not-an-address"}))
	assert.Empty(t, sender.sent)
}

func TestNotifyConfirmation_WrapsSendError(t *testing.T) {
	sender := &recordingSender{err: errors.New("boom")}
	svc := NewService(sender, nil)

	err := svc.NotifyConfirmation(context.Background(), Confirmation{Kind: ConfirmationBooked, Email: "jane@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "booked")
}

func TestNotifyConfirmation_UnknownKind(t *testing.T) {
	svc := NewService(&recordingSender{}, nil)
	err := svc.NotifyConfirmation(context.Background(), Confirmation{Kind: "rescheduled", Email: "jane@example.com"})
	assert.Error(t, err)
}

func TestNilServiceIsNoop(t *testing.T) {
	var svc *Service
	assert.NoError(t, svc.NotifyConfirmation(context.Background(), Confirmation{Kind: ConfirmationBooked, Email: "jane@example.com"}))
}
