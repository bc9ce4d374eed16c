package email

import (
	"context"
	"strings"
	"testing"

	"notifycsc/internal/platform/config"
)

func TestRenderStripsHeaderInjection(t *testing.T) {
	raw := string(Render(Message{
		From:    "no-reply@notifycsc.local",
		To:      "holder@example.com\r\nBcc: attacker@example.com",
		Subject: "Policy renewal",
		Body:    "Your policy expires soon.",
	}))
	if strings.Contains(raw, "\r\nBcc:") {
		t.Fatalf("header injection not stripped: %q", raw)
	}
	if !strings.HasSuffix(raw, "\r\n\r\nYour policy expires soon.") {
		t.Fatalf("unexpected body framing: %q", raw)
	}
}

func TestNewDisabledSenderIsNoop(t *testing.T) {
	sender := New(config.Config{EmailEnabled: false})
	if err := sender.Send(context.Background(), Message{To: "a@example.com"}); err != nil {
		t.Fatalf("expected noop sender, got %v", err)
	}
}
