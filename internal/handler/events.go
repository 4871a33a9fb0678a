package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/service"
)

// ProgressStream hands out per-run progress subscriptions
type ProgressStream interface {
	Subscribe(ctx context.Context, runID uuid.UUID) *service.Subscriber
	Unsubscribe(id string)
}

// EventsHandler streams training progress as Server-Sent Events
type EventsHandler struct {
	runs      RunService
	stream    ProgressStream
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(runs RunService, stream ProgressStream, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		runs:      runs,
		stream:    stream,
		logger:    logger,
		heartbeat: 30 * time.Second,
	}
}

// StreamRunEvents handles GET /v1/runs/:id/events. The stream opens with
// the run's current status and closes once the run reaches a terminal one.
func (h *EventsHandler) StreamRunEvents(c *fiber.Ctx) error {
	runID, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	// Subscribe before reading the status so no transition is missed.
	sub := h.stream.Subscribe(c.Context(), runID)
	run, err := h.runs.GetRun(c.UserContext(), runID)
	if err != nil {
		h.stream.Unsubscribe(sub.ID)
		return respondError(c, h.logger, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	h.logger.Debug("progress stream opened",
		zap.String("run_id", runID.String()),
		zap.String("subscriber_id", sub.ID),
	)

	initial := domain.RunProgressEvent{
		RunID:     run.ID,
		Type:      domain.RunEventStatus,
		Status:    run.Status,
		Message:   run.Error,
		Timestamp: time.Now().UTC(),
	}

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.stream.Unsubscribe(sub.ID)

		if err := writeEvent(w, initial); err != nil || run.Status.IsTerminal() {
			return
		}

		heartbeat := time.NewTicker(h.heartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case event, ok := <-sub.Channel:
				if !ok {
					return
				}
				if err := writeEvent(w, event); err != nil {
					return
				}
				if event.Type == domain.RunEventStatus && event.Status.IsTerminal() {
					return
				}

			case <-heartbeat.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					// Client went away.
					return
				}

			case <-sub.Done:
				return
			}
		}
	}))

	return nil
}

// writeEvent writes one SSE frame and flushes it.
func writeEvent(w *bufio.Writer, event domain.RunProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: %s\n", event.Type)
	fmt.Fprintf(w, "data: %s\n\n", data)
	return w.Flush()
}
