package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prepmate/prepmate/internal/domain"
)

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishResultCreated notifies the result's owner that the report is ready.
// Clients subscribed to their user channel can fetch the full result without
// polling.
func (a *API) PublishResultCreated(ctx context.Context, e domain.EventResultCreated) error {
	return a.publishNotification(ctx, e.Result.OwnerID, e.Name(), toResult(e.Result))
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
