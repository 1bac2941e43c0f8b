package mqtt

import (
	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/command"
)

// CommandHandler parses operator requests and hands them to requests
// without blocking the client. Invalid or overflowing requests are logged
// and dropped.
func CommandHandler(requests chan<- command.Request, logger *zap.Logger) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		r, err := command.Parse(msg.Payload(), "mqtt")
		if err != nil {
			logger.Warn("rejected mqtt command", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		if !command.Offer(requests, r) {
			logger.Warn("command queue full, dropping", zap.String("action", string(r.Action)))
		}
	}
}
