package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifyFailureSendsMessage(t *testing.T) {
	n := NewSMTPNotifier("mail.local", 2525, "noreply@roop.local", zap.NewNop())
	var gotAddr string
	var gotTo []string
	var gotMsg string
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, n.NotifyFailure(context.Background(), "user@example.com", "job-1", "u1/clip.mp4", "no frames"))

	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"user@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: roop - Face swap failed [Job job-1]")
	assert.Contains(t, gotMsg, "Target: u1/clip.mp4")
	assert.Contains(t, gotMsg, "Error: no frames")
}

func TestNotifyFailureWrapsSendError(t *testing.T) {
	n := NewSMTPNotifier("mail.local", 2525, "noreply@roop.local", zap.NewNop())
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }

	err := n.NotifyFailure(context.Background(), "user@example.com", "job-1", "k", "e")
	assert.ErrorContains(t, err, "send email: connection refused")
}
