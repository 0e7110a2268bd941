package executor

import (
	"context"
	"net/url"

	"github.com/c360/semwidgets/datasource"
)

// WebSocketExecutor reports the intent to connect; it does not open a stream.
type WebSocketExecutor struct{}

func (WebSocketExecutor) Type() datasource.ItemType { return datasource.ItemWebSocket }

func (WebSocketExecutor) Execute(_ context.Context, in Input) datasource.Result {
	raw := in.Config.String("url")
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return datasource.Failed(datasource.CodeWebSocketInvalidURL, "invalid websocket url %q", raw)
	}
	return datasource.Succeeded(map[string]any{"status": "connecting", "url": raw})
}
