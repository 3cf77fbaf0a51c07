package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/advisoros/taskcore/pkg/broker"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/gofiber/fiber/v3"
)

const (
	sseConnected = "connected"
	sseSnapshot  = "snapshot"
	sseError     = "error"
)

// WorkflowEvents streams the events of one workflow as server-sent events.
func (h *APIHandlers) WorkflowEvents(c fiber.Ctx) error {
	id := c.Params("id")

	_, err := h.registry.GetWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return h.stream(c, broker.Filter{WorkflowID: id, EntityTypes: entityTypes(c.Query("entity_types"))})
}

// OrganizationEvents streams the events of every workflow of an organization.
func (h *APIHandlers) OrganizationEvents(c fiber.Ctx) error {
	return h.stream(c, broker.Filter{OrganizationID: c.Params("id"), EntityTypes: entityTypes(c.Query("entity_types"))})
}

func entityTypes(raw string) []events.EntityType {
	if raw == "" {
		return nil
	}

	var types []events.EntityType

	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, events.EntityType(part))
		}
	}

	return types
}

func (h *APIHandlers) stream(c fiber.Ctx, filter broker.Filter) error {
	sub, err := h.broker.Subscribe(filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("X-Accel-Buffering", "no")

	// The connection is not reused after the stream, which leaves its read side to
	// closeNotify.
	c.RequestCtx().SetConnectionClose()

	logger := h.logger.With("subscription_id", sub.ID)
	heartbeat := h.heartbeat
	conn := c.RequestCtx().Conn()
	shutdown := c.RequestCtx().Done()

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		ctx, cancel := closeNotify(conn, shutdown)
		defer cancel()

		logger.DebugContext(ctx, "event stream opened", "workflow_id", filter.WorkflowID, "organization_id", filter.OrganizationID)

		err := streamEvents(ctx, w, sub, heartbeat, logger)
		logger.DebugContext(ctx, "event stream closed", "reason", err)
	})
}

// closeNotify returns a context that is cancelled when the peer closes conn or the
// server shuts down. SSE clients send nothing after the request, so any read result
// ends the stream.
func closeNotify(conn net.Conn, shutdown <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	if conn != nil {
		go func() {
			defer cancel()

			buf := make([]byte, 1)
			_, _ = conn.Read(buf)
		}()
	}

	go func() {
		select {
		case <-shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// streamEvents writes the subscription's events until the subscription ends or the client
// goes away. When the broker asks for a resync the stream fetches the snapshot itself, so
// a session only ever has to apply events and snapshots in the order it reads them.
func streamEvents(ctx context.Context, w *bufio.Writer, sub *broker.Subscription, heartbeat time.Duration, logger *slog.Logger) error {
	err := writeEvent(w, sseConnected, "", fiber.Map{"subscription_id": sub.ID, "filter": sub.Filter()})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if _, err := w.WriteString(": heartbeat\n\n"); err != nil {
				return err
			}

			if err := w.Flush(); err != nil {
				return err
			}

		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}

			err := writeEvent(w, string(event.Type), fmt.Sprintf("%s:%d", event.EntityID, event.Version), event)
			if err != nil {
				return err
			}

			if event.Type != events.ResyncRequiredEvent {
				continue
			}

			logger.WarnContext(ctx, "subscriber overflowed, sending snapshot")

			snapshot, err := sub.Resync(ctx)
			if err != nil {
				_ = writeEvent(w, sseError, "", fiber.Map{"message": err.Error()})

				return err
			}

			err = writeEvent(w, sseSnapshot, "", snapshot)
			if err != nil {
				return err
			}
		}
	}
}

func writeEvent(w *bufio.Writer, eventType, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}

	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", body); err != nil {
		return err
	}

	return w.Flush()
}
