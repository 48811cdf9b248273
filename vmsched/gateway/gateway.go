package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mulgadc/vmsched/vmsched/directory"
	"github.com/mulgadc/vmsched/vmsched/lifecycle"
	"github.com/mulgadc/vmsched/vmsched/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayConfig serves the HTTP push trigger, health and metrics endpoints.
type GatewayConfig struct {
	Handlers       map[directory.Action]*lifecycle.Handler
	Token          string              // Bearer token required on push routes when set
	Gatherer       prometheus.Gatherer // Defaults to prometheus.DefaultGatherer
	DisableLogging bool
	// BaseContext is passed to handlers; defaults to context.Background.
	BaseContext func() context.Context
}

// PushEnvelope is the body of a Pub/Sub push delivery.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

type PushMessage struct {
	Data        string            `json:"data"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	PublishTime string            `json:"publishTime,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (gw *GatewayConfig) SetupRoutes() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			return gw.ErrorHandler(ctx, err)
		},
	})

	app.Use(recover.New())
	if !gw.DisableLogging {
		app.Use(logger.New())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	gatherer := gw.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	push := app.Group("/push", gw.BearerAuthMiddleware())
	push.Post("/:action", gw.Push)

	return app
}

// Push runs the handler for :action with the pushed message. The delivery is
// acknowledged once handled, whatever the invocation outcome.
func (gw *GatewayConfig) Push(c *fiber.Ctx) error {
	action, err := directory.ParseAction(c.Params("action"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	handler, ok := gw.Handlers[action]
	if !ok || handler == nil {
		return fiber.NewError(fiber.StatusNotFound, "no handler for action "+string(action))
	}

	var envelope PushEnvelope
	if err := json.Unmarshal(c.Body(), &envelope); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid push envelope: "+err.Error())
	}

	ctx := context.Background()
	if gw.BaseContext != nil {
		ctx = gw.BaseContext()
	}

	report := handler.Handle(ctx, schedule.Event{
		Data:       envelope.Message.Data,
		Attributes: envelope.Message.Attributes,
	})

	slog.Debug("Push delivery handled", "action", string(action), "messageId", envelope.Message.MessageID,
		"subscription", envelope.Subscription, "invocation", report.InvocationID)

	return c.SendStatus(fiber.StatusNoContent)
}

func (gw *GatewayConfig) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	if code >= fiber.StatusInternalServerError {
		slog.Error("Gateway request failed", "path", ctx.Path(), "error", err)
	}

	return ctx.Status(code).JSON(ErrorResponse{Error: err.Error()})
}
