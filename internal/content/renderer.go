package content

import (
	"context"

	"github.com/opencampus/delivery-engine/internal/domain"
)

// Rendered is final channel-ready text. The engine stores it verbatim and
// never interprets template syntax.
type Rendered struct {
	Subject string
	Body    string
}

// Renderer is the template/localization collaborator. It resolves an event
// into channel-specific subject and body for a locale.
type Renderer interface {
	Render(ctx context.Context, notificationType domain.NotificationType, locale string, data map[string]string) (map[domain.Channel]Rendered, error)
}
