package registry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adisbladis/threatbus/internal/appadapter"
	"github.com/adisbladis/threatbus/internal/backbone"
)

// init registers this repository's two reference adapters. A separate
// build living outside this module can add more with RegisterApp /
// RegisterBackbone without touching cmd/threatbusd.
func init() {
	RegisterApp("zeek-websocket", func(host string, port int) (appadapter.Endpoint, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		addr := fmt.Sprintf("%s:%d", host, port)
		return appadapter.ListenWS(ctx, addr, zap.L())
	})

	RegisterBackbone("amqp", func(url string) (backbone.Backbone, error) {
		return backbone.DialAMQP(url, zap.L())
	})
}
