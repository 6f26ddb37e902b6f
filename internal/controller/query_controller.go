package controller

import (
	"filings-rag-be/internal/dto"
	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/internal/pkg/serverutils"
	"filings-rag-be/internal/service"
	"filings-rag-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

type IQueryController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Ask(ctx *fiber.Ctx) error
	ListSessions(ctx *fiber.Ctx) error
	Summary(ctx *fiber.Ctx) error
	Reset(ctx *fiber.Ctx) error
	Feedback(ctx *fiber.Ctx) error
	UpdatePreferences(ctx *fiber.Ctx) error
	Cleanup(ctx *fiber.Ctx) error
}

type queryController struct {
	service service.IQueryService
	logger  logger.ILogger
}

func NewQueryController(service service.IQueryService, log logger.ILogger) IQueryController {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &queryController{service: service, logger: log}
}

func (c *queryController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/query/v1")
	if auth != nil {
		h.Use(auth)
	}
	h.Post("ask", c.Ask)
	h.Get("sessions", c.ListSessions)
	h.Post("sessions/cleanup", c.Cleanup)
	h.Get("sessions/:id", c.Summary)
	h.Delete("sessions/:id", c.Reset)
	h.Post("sessions/:id/feedback", c.Feedback)
	h.Put("sessions/:id/preferences", c.UpdatePreferences)

	h.Use("stream", func(ctx *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(ctx) {
			return ctx.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	h.Get("stream", fiberws.New(func(conn *fiberws.Conn) {
		userID, _ := conn.Locals(serverutils.LocalUserID).(string)
		websocket.ServeStream(conn, c.service, userID, c.logger)
	}))
}

func (c *queryController) Ask(ctx *fiber.Ctx) error {
	var req dto.AskRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest(err)
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Ask(ctx.UserContext(), serverutils.UserID(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success answer question", res))
}

func (c *queryController) ListSessions(ctx *fiber.Ctx) error {
	userID := serverutils.UserID(ctx)
	if userID == "" {
		userID = ctx.Query("user_id")
	}

	res, err := c.service.ListSessions(ctx.UserContext(), userID)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", res))
}

func (c *queryController) Summary(ctx *fiber.Ctx) error {
	res, err := c.service.Summary(ctx.UserContext(), serverutils.UserID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show session", res))
}

func (c *queryController) Reset(ctx *fiber.Ctx) error {
	if err := c.service.Reset(ctx.UserContext(), serverutils.UserID(ctx), ctx.Params("id")); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success reset session", nil))
}

func (c *queryController) Feedback(ctx *fiber.Ctx) error {
	var req dto.FeedbackRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest(err)
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.Feedback(ctx.UserContext(), serverutils.UserID(ctx), ctx.Params("id"), &req); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success record feedback", nil))
}

func (c *queryController) UpdatePreferences(ctx *fiber.Ctx) error {
	var req dto.PreferencesRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest(err)
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.UpdatePreferences(ctx.UserContext(), serverutils.UserID(ctx), ctx.Params("id"), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update preferences", res))
}

func (c *queryController) Cleanup(ctx *fiber.Ctx) error {
	var req dto.CleanupRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return serverutils.BadRequest(err)
		}
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Cleanup(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success cleanup sessions", res))
}
