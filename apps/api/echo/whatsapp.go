package echoapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/core/whatsapp"
)

const signatureHeader = "X-Hub-Signature-256"

func (s *Server) registerWhatsAppAPI(g *echo.Group) {
	// Meta calls the webhook without a token
	hg := g.Group("/webhooks/whatsapp", s.rateLimit("webhook"))
	hg.GET("", s.verifyWebhook)
	hg.POST("", s.receiveWebhook)

	wg := s.group(g, "/whatsapp", true)
	wg.Use(can(user.PermMessagingManage))

	wg.POST("/templates", s.createTemplate)
	wg.GET("/templates", s.queryTemplates)
	wg.GET("/templates/:id", s.retrieveTemplate)
	wg.PUT("/templates/:id", s.updateTemplate)
	wg.DELETE("/templates/:id", s.destroyTemplate)
	wg.POST("/templates/:id/preview", s.previewTemplate)

	wg.POST("/messages", s.sendMessage)
	wg.GET("/messages", s.queryMessages)
	wg.GET("/messages/:id", s.retrieveMessage)

	wg.GET("/webhook-events", s.queryWebhookEvents)
}

// Templates

func (s *Server) createTemplate(ctx echo.Context) error {
	var data whatsapp.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	tpl, err := s.svc.WhatsApp.CreateTemplate(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tpl)
}

func (s *Server) queryTemplates(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &whatsapp.TemplateFilter{
		Search:   q.String("search"),
		Category: q.String("category"),
		IsActive: q.Bool("is_active"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	templates, err := s.svc.WhatsApp.QueryTemplates(ctx.Request().Context(), getSchoolID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	if templates == nil {
		templates = []whatsapp.Template{}
	}
	return ctx.JSON(http.StatusOK, templates)
}

func (s *Server) retrieveTemplate(ctx echo.Context) error {
	tpl, err := s.svc.WhatsApp.GetTemplate(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (s *Server) updateTemplate(ctx echo.Context) error {
	tpl, err := s.svc.WhatsApp.GetTemplate(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	var data whatsapp.UpdateTemplate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTemplate")
	}
	if err = data.Validate(tpl, s.validate); err != nil {
		return err
	}
	tpl, err = s.svc.WhatsApp.UpdateTemplate(ctx.Request().Context(), getSchoolID(ctx), tpl.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating template")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (s *Server) destroyTemplate(ctx echo.Context) error {
	if err := s.svc.WhatsApp.DeleteTemplate(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	PreviewRequest struct {
		Params []string `json:"params"`
	}

	PreviewResponse struct {
		Body string `json:"body"`
	}
)

func (s *Server) previewTemplate(ctx echo.Context) error {
	var data PreviewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PreviewRequest")
	}
	body, err := s.svc.WhatsApp.Preview(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"), data.Params)
	if err != nil {
		return errors.Wrap(err, "previewing template")
	}
	return ctx.JSON(http.StatusOK, PreviewResponse{Body: body})
}

// Messages

func (s *Server) sendMessage(ctx echo.Context) error {
	var data whatsapp.SendMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendMessage")
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	res, err := s.svc.WhatsApp.Send(ctx.Request().Context(), getSchoolID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "sending messages")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (s *Server) queryMessages(ctx echo.Context) error {
	q := newQueryParams(ctx)
	filter := &whatsapp.MessageFilter{
		TemplateID: q.String("template_id"),
		Status:     q.String("status"),
		Recipient:  q.String("recipient"),
		Since:      q.Time("since"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	msgs, err := s.svc.WhatsApp.QueryMessages(ctx.Request().Context(), getSchoolID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying messages")
	}
	if msgs == nil {
		msgs = []whatsapp.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (s *Server) retrieveMessage(ctx echo.Context) error {
	msg, err := s.svc.WhatsApp.GetMessage(ctx.Request().Context(), getSchoolID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting message")
	}
	return ctx.JSON(http.StatusOK, msg)
}

// Webhook

func (s *Server) verifyWebhook(ctx echo.Context) error {
	challenge, err := s.svc.WhatsApp.VerifyWebhook(
		ctx.QueryParam("hub.mode"),
		ctx.QueryParam("hub.verify_token"),
		ctx.QueryParam("hub.challenge"),
	)
	if err != nil {
		return err
	}
	return ctx.String(http.StatusOK, challenge)
}

func (s *Server) receiveWebhook(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading webhook body")
	}
	if _, err = s.svc.WhatsApp.HandleWebhook(ctx.Request().Context(), body, ctx.Request().Header.Get(signatureHeader)); err != nil {
		return errors.Wrap(err, "handling webhook")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "ok"})
}

func (s *Server) queryWebhookEvents(ctx echo.Context) error {
	q := newQueryParams(ctx)
	limit := q.Int("limit")
	if err := q.Err(); err != nil {
		return err
	}
	events, err := s.svc.WhatsApp.QueryWebhookEvents(ctx.Request().Context(), getSchoolID(ctx), limit)
	if err != nil {
		return errors.Wrap(err, "querying webhook events")
	}
	if events == nil {
		events = []whatsapp.WebhookEvent{}
	}
	return ctx.JSON(http.StatusOK, events)
}
