package cataloglistener

import (
	"encoding/json"
	"io"
	"os"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/utils"
	"github.com/gin-gonic/gin"
)

// PubSubPushEnvelope is the Google Pub/Sub push delivery wrapper.
type PubSubPushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		MessageId   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PubSubPushHandler acks every delivery with 204; malformed or failed
// events are logged, not redelivered. Handlers are idempotent either way,
// and a poison event must not wedge the subscription.
func PubSubPushHandler(listener *Listener) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.EnvBoolDefault(os.Getenv("ENABLE_CATALOG_PUSH_ENDPOINT"), true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		event, err := DecodeEvent(envelope.Message.Data)
		if err != nil {
			c.Status(204)
			return
		}

		if err := listener.Handle(c.Request.Context(), event); err != nil {
			config.LogError(listener.Logger, "cataloglistener", "PubSubPushHandler",
				envelope.Message.MessageId, event, err)
		}
		c.Status(204)
	}
}
