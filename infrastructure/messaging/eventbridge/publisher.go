package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/application/ports"
)

const eventSource = "heirloom.api"

// Publisher implements ports.EventPublisher using AWS EventBridge.
type Publisher struct {
	client       *eventbridge.Client
	eventBusName string
	logger       *zap.Logger
}

// NewPublisher creates a new EventBridge publisher
func NewPublisher(client *eventbridge.Client, eventBusName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		logger:       logger,
	}
}

// Publish sends a mutation event to the configured event bus. Transient
// failures are retried with exponential backoff.
func (p *Publisher) Publish(ctx context.Context, event ports.MutationEvent) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	entry := types.PutEventsRequestEntry{
		EventBusName: aws.String(p.eventBusName),
		Source:       aws.String(eventSource),
		DetailType:   aws.String(event.Type),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(time.Now().UTC()),
		Resources: []string{
			fmt.Sprintf("arn:aws:heirloom::%s", event.SpaceID),
		},
	}

	const maxRetries = 3
	backoff := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err = p.putEvent(ctx, entry)
		if err == nil {
			return nil
		}

		if attempt < maxRetries-1 {
			p.logger.Warn("Retrying event publication",
				zap.String("eventType", event.Type),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, err)
}

func (p *Publisher) putEvent(ctx context.Context, entry types.PutEventsRequestEntry) error {
	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("put events: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for _, e := range result.Entries {
			if e.ErrorCode != nil {
				p.logger.Error("Event rejected by EventBridge",
					zap.String("errorCode", *e.ErrorCode),
					zap.String("errorMessage", aws.ToString(e.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Event published",
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}
