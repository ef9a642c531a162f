package cataloglistener

import (
	"context"
	"os"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

// RunCatalogSubscriber attaches a pull consumer to the catalog events
// topic and feeds every message through the listener. Deployments behind
// a push endpoint leave CATALOG_EVENTS_SUBSCRIPTION unset and skip this.
func RunCatalogSubscriber(ctx context.Context, listener *Listener) error {
	logger := listener.Logger

	topicName := os.Getenv("CATALOG_EVENTS_TOPIC")
	subName := os.Getenv("CATALOG_EVENTS_SUBSCRIPTION")

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, topicName)
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, subName, topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		event, err := DecodeEvent(msg.Data)
		if err != nil {
			config.LogError(logger, "cataloglistener", "RunCatalogSubscriber", msg.ID, string(msg.Data), err)
			// Malformed payloads never become valid; drop them.
			msg.Ack()
			return
		}
		if err := listener.Handle(ctx, event); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "cataloglistener",
				"reference_type": event.ReferenceType,
				"reference_id":   event.ReferenceId,
				"message_id":     msg.ID,
			}).Error("catalog event processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "cataloglistener", "RunCatalogSubscriber", "receive loop exited", nil, err)
		}
	}()

	return nil
}
