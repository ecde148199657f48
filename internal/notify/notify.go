package notify

import (
	"context"

	"voicebridge/internal/call"
)

// StatusSink receives externally visible session updates. Per call,
// delivery order matches transition order. Implementations must treat
// delivery as best-effort; call flow never blocks on a sink error.
type StatusSink interface {
	Publish(ctx context.Context, s call.Session) error
}
