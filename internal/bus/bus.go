package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xaenox/curatord/internal/models"
	"go.uber.org/zap"
)

// Command types published on the commands channel.
const (
	CommandRegisterCurator = "register_curator"
	CommandRunCurator      = "run_curator"
	CommandUpdateCurator   = "update_curator"
	CommandDeleteCurator   = "delete_curator"
)

// redisClient is the slice of *redis.Client the bus uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// MessageBus publishes signed commands to the curation worker and consumes
// its signed responses. Publishing is fire-and-forget: the transport drops
// messages with no active subscriber and nothing is redelivered.
type MessageBus struct {
	client          redisClient
	codec           *Codec
	commandChannel  string
	responseChannel string
	logger          *zap.Logger
}

func NewMessageBus(client *redis.Client, codec *Codec, commandChannel, responseChannel string, logger *zap.Logger) *MessageBus {
	return &MessageBus{
		client:          client,
		codec:           codec,
		commandChannel:  commandChannel,
		responseChannel: responseChannel,
		logger:          logger,
	}
}

// SendCommand signs and publishes a command. No acknowledgment is awaited.
func (b *MessageBus) SendCommand(ctx context.Context, msgType string, payload map[string]any) error {
	msg, err := b.codec.Sign(msgType, payload)
	if err != nil {
		return fmt.Errorf("failed to sign %s command: %w", msgType, err)
	}

	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s command: %w", msgType, err)
	}

	if err := b.client.Publish(ctx, b.commandChannel, encoded).Err(); err != nil {
		return fmt.Errorf("failed to publish %s command: %w", msgType, err)
	}

	curatorID, _ := payload["curator_id"].(string)
	b.logger.Info("Sent curator command",
		zap.String("type", msgType),
		zap.String("curator_id", curatorID))
	return nil
}

// RegisterCurator announces a new curator to the worker, handing over the
// plaintext bearer token minted for its identity. The token travels only on
// the signed channel and is not stored here.
func (b *MessageBus) RegisterCurator(ctx context.Context, curator *models.Curator, apiToken string) error {
	name := curator.Name
	if name == "" {
		name = fmt.Sprintf("Curator %s", curator.ID)
	}

	return b.SendCommand(ctx, CommandRegisterCurator, map[string]any{
		"curator_id":    curator.ID,
		"collection_id": curator.CollectionID,
		"api_token":     apiToken,
		"curator_config": map[string]any{
			"name":                 name,
			"collection_id":        curator.CollectionID,
			"prompt":               curator.Prompt,
			"model":                curator.Model,
			"auto_approve":         curator.AutoApprove,
			"confidence_threshold": curator.ConfidenceThreshold,
		},
	})
}

// RunCurator asks the worker to run a curator now. A non-empty task switches
// the strategy to custom and carries the extra instructions.
func (b *MessageBus) RunCurator(ctx context.Context, curator *models.Curator, task string) error {
	payload := map[string]any{
		"curator_id": curator.ID,
		"strategy":   "default",
	}
	if task != "" {
		payload["task"] = task
		payload["additional_instructions"] = task
		payload["strategy"] = "custom"
	}
	return b.SendCommand(ctx, CommandRunCurator, payload)
}

func (b *MessageBus) UpdateCurator(ctx context.Context, curator *models.Curator) error {
	return b.SendCommand(ctx, CommandUpdateCurator, map[string]any{
		"curator_id": curator.ID,
		"config": map[string]any{
			"prompt":               curator.Prompt,
			"schedule":             string(curator.ScheduleType),
			"auto_approve":         curator.AutoApprove,
			"confidence_threshold": curator.ConfidenceThreshold,
		},
	})
}

func (b *MessageBus) DeleteCurator(ctx context.Context, curatorID string) error {
	return b.SendCommand(ctx, CommandDeleteCurator, map[string]any{
		"curator_id": curatorID,
	})
}

// ListenForResponses subscribes to the response channel and feeds verified
// payloads to handler until ctx is done. It blocks for its whole lifetime;
// run it in a dedicated goroutine.
func (b *MessageBus) ListenForResponses(ctx context.Context, handler func(data map[string]any)) error {
	sub := b.client.Subscribe(ctx, b.responseChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handleRaw(msg.Payload, handler)
		}
	}
}

func (b *MessageBus) handleRaw(payload string, handler func(data map[string]any)) {
	var msg SignedMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.logger.Warn("Dropping malformed curator response", zap.Error(err))
		return
	}

	if !b.codec.Verify(msg) {
		b.logger.Warn("Dropping curator response with invalid signature")
		return
	}

	var data map[string]any
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		b.logger.Warn("Dropping undecodable curator response", zap.Error(err))
		return
	}

	handler(data)
}
