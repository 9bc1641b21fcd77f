package bus

import (
	"context"
	"time"

	"github.com/xaenox/curatord/internal/models"
	"github.com/xaenox/curatord/internal/storage"
	"go.uber.org/zap"
)

// Event types received from the curation worker.
const (
	EventCuratorRegistered  = "curator_registered"
	EventCuratorRunComplete = "curator_run_complete"
	EventCuratorRunFailed   = "curator_run_failed"
	EventCuratorDeleted     = "curator_deleted"
)

// Dispatcher consumes verified response payloads from the bus and applies
// their effects to curator state. It never returns an error to the bus:
// responses are asynchronous and anything unprocessable is logged and dropped.
type Dispatcher struct {
	curators storage.CuratorStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispatcher(curators storage.CuratorStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		curators: curators,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle processes one verified response payload.
func (d *Dispatcher) Handle(data map[string]any) {
	msgType, _ := data["type"].(string)

	switch msgType {
	case "event":
		d.handleEvent(data)
	case "ack":
		originalID, _ := data["original_id"].(string)
		d.logger.Info("Command acknowledged", zap.String("original_id", originalID))
	default:
		d.logger.Warn("Unknown response type", zap.String("type", msgType))
	}
}

func (d *Dispatcher) handleEvent(data map[string]any) {
	eventType, _ := data["event_type"].(string)
	eventData, _ := data["data"].(map[string]any)

	switch eventType {
	case EventCuratorRegistered:
		d.logger.Info("Curator registered", zap.Any("data", eventData))
	case EventCuratorRunComplete:
		d.handleRunComplete(eventData)
	case EventCuratorRunFailed:
		d.handleRunFailed(eventData)
	case EventCuratorDeleted:
		d.logger.Info("Curator deleted", zap.Any("data", eventData))
	default:
		d.logger.Info("Curator event", zap.String("event_type", eventType), zap.Any("data", eventData))
	}
}

func (d *Dispatcher) handleRunComplete(data map[string]any) {
	curatorID, _ := data["curator_id"].(string)
	if curatorID == "" {
		return
	}

	ctx := context.Background()
	curator, err := d.curators.GetCurator(ctx, curatorID)
	if err != nil {
		d.logger.Warn("Run completed for unknown curator",
			zap.String("curator_id", curatorID), zap.Error(err))
		return
	}

	now := d.now()
	if err := d.curators.SetRunTimes(ctx, curator.ID, &now, curator.CalculateNextRunTime(now)); err != nil {
		d.logger.Error("Failed to record curator run completion",
			zap.String("curator_id", curatorID), zap.Error(err))
		return
	}

	d.logger.Info("Curator run completed", zap.String("curator_id", curatorID))
}

func (d *Dispatcher) handleRunFailed(data map[string]any) {
	curatorID, _ := data["curator_id"].(string)
	reason, _ := data["error"].(string)

	d.logger.Error("Curator run failed",
		zap.String("curator_id", curatorID),
		zap.String("error", reason))

	if curatorID == "" {
		return
	}

	if reason == "" {
		reason = "curator run failed"
	}
	err := d.curators.SetCuratorStatus(context.Background(), curatorID, models.CuratorError, reason)
	if err != nil {
		d.logger.Error("Failed to mark curator errored",
			zap.String("curator_id", curatorID), zap.Error(err))
	}
}
