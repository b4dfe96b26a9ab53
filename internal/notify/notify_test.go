package notify

import (
	"context"
	"testing"

	"github.com/flowdesk/optionflow/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestNewTelegramNotifierNilWhenTokenEmpty(t *testing.T) {
	n := NewTelegramNotifier("", 123)
	assert.Nil(t, n)
}

func TestNotifyAlertNilReceiverIsSafe(t *testing.T) {
	var n *TelegramNotifier
	assert.NotPanics(t, func() {
		n.NotifyAlert(context.Background(), model.AlertEvent{PacketID: "p1"})
	})
}

func TestNotifyAlertZeroChatIDIsNoop(t *testing.T) {
	n := &TelegramNotifier{chatID: 0}
	assert.NotPanics(t, func() {
		n.NotifyAlert(context.Background(), model.AlertEvent{PacketID: "p1"})
	})
}
