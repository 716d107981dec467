package notify_test

import (
	"context"
	"testing"

	"github.com/yourorg/tradingcore/internal/notify"
)

func TestNoOp_NeverPanics(t *testing.T) {
	var n notify.NoOp
	n.Notify(context.Background(), "circuit open", "broker ZERODHA degraded")
}

func TestNew_RejectsInvalidToken(t *testing.T) {
	_, err := notify.New("", 0)
	if err == nil {
		t.Fatal("expected an error constructing a Telegram client with an empty token")
	}
}
