package api

import (
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/viniciusxv27/enviomkt/internal/service"
)

func (s *Server) handleDispatch(c *fiber.Ctx) error {
	in := service.DispatchInput{
		Spreadsheet:  formFile(c, "excel_file"),
		Message:      c.FormValue("message"),
		Message2:     c.FormValue("message2"),
		Message3:     c.FormValue("message3"),
		Image:        formFile(c, "image_file"),
		Video:        formFile(c, "video_file"),
		ScheduleDate: c.FormValue("schedule_date"),
		ScheduleTime: c.FormValue("schedule_time"),
		NumeroID:     c.FormValue("numero_id"),
	}

	result, err := s.services.Dispatch.Submit(c.Context(), in)
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"data":           result.Summary(),
		"leads":          result.Leads,
		"webhook_status": result.WebhookStatus,
	})
}

// formFile returns nil when the field is absent or the request is not multipart.
func formFile(c *fiber.Ctx, field string) *multipart.FileHeader {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil
	}
	return fh
}
