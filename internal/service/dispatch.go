package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/internal/importer"
	"github.com/viniciusxv27/enviomkt/internal/media"
	"github.com/viniciusxv27/enviomkt/internal/ws"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

const (
	MsgMessageRequired   = "Mensagem é obrigatória"
	MsgSelectAccount     = "Selecione um número para envio"
	MsgUnknownAccount    = "Número selecionado não encontrado"
	msgProcessFileFailed = "Erro ao processar arquivo: "
	msgVideoFailed       = "Erro ao enviar vídeo: "
)

// ErrWebhookUnset refuses dispatches while WEBHOOK_URL is empty.
var ErrWebhookUnset = errors.New("Webhook de envio não configurado")

// MediaAttacher turns uploads into payload fields.
type MediaAttacher interface {
	EncodeImage(fh *multipart.FileHeader) (string, error)
	AttachVideo(ctx context.Context, fh *multipart.FileHeader) (string, error)
}

// DispatchInput is the submitted dispatch form.
type DispatchInput struct {
	Spreadsheet  *multipart.FileHeader
	Message      string
	Message2     string
	Message3     string
	Image        *multipart.FileHeader
	Video        *multipart.FileHeader
	ScheduleDate string
	ScheduleTime string
	NumeroID     string
}

type DispatchResult struct {
	Payload       *domain.DispatchPayload
	Leads         int
	WebhookStatus int
}

// Summary is the payload as echoed back to the operator, without the image body.
func (r *DispatchResult) Summary() domain.DispatchPayload {
	p := *r.Payload
	p.Base64 = nil
	return p
}

// DispatchService validates a dispatch form and forwards it to the webhook
type DispatchService struct {
	accounts AccountStore
	attacher MediaAttacher
	webhook  WebhookSender
	hub      Broadcaster
}

// Submit validates everything before any file is read, then builds and sends the payload.
func (s *DispatchService) Submit(ctx context.Context, in DispatchInput) (*DispatchResult, error) {
	if s.webhook == nil {
		return nil, ErrWebhookUnset
	}
	if err := importer.ValidateUpload(in.Spreadsheet); err != nil {
		return nil, err
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, domain.NewValidationError(MsgMessageRequired)
	}
	account, err := s.selectedAccount(ctx, in.NumeroID)
	if err != nil {
		return nil, err
	}

	leads, err := s.readLeads(in.Spreadsheet)
	if err != nil {
		return nil, err
	}

	payload := &domain.DispatchPayload{
		Message:            message,
		Message2:           orDefault(in.Message2, message),
		Message3:           orDefault(in.Message3, message),
		Leads:              leads,
		DataAgendamento:    optionalString(in.ScheduleDate),
		HorarioAgendamento: optionalString(in.ScheduleTime),
		Instancia:          account.Instancia,
		RemoteJID:          account.RemoteJID,
		Numero:             account.Numero,
		LinkPlanilha:       account.LinkPlanilha,
	}

	if hasFile(in.Image) {
		encoded, err := s.attacher.EncodeImage(in.Image)
		if err != nil {
			return nil, domain.NewValidationError(msgProcessFileFailed + err.Error())
		}
		payload.HaImg = true
		payload.Base64 = &encoded
	}

	if hasFile(in.Video) {
		url, err := s.attacher.AttachVideo(ctx, in.Video)
		if err != nil {
			var upErr *media.UploadError
			if errors.As(err, &upErr) {
				return nil, &domain.UpstreamError{Message: msgVideoFailed + upErr.Error(), Err: err}
			}
			return nil, err
		}
		payload.HaVideo = true
		payload.VideoURL = &url
	}

	entry := log.Component("dispatch").WithField("instance", account.Instancia).WithField("leads", len(leads))
	entry.Infof("submitting dispatch (image=%t video=%t)", payload.HaImg, payload.HaVideo)

	status, err := s.webhook.Submit(ctx, payload)
	if err != nil {
		entry.Errorf("dispatch failed: %v", err)
		s.hub.Broadcast(ws.EventNotification, map[string]interface{}{
			"level":     "error",
			"instancia": account.Instancia,
			"message":   err.Error(),
		})
		return nil, err
	}

	s.hub.Broadcast(ws.EventDispatchSent, map[string]interface{}{
		"instancia":      account.Instancia,
		"leads":          len(leads),
		"haImg":          payload.HaImg,
		"haVideo":        payload.HaVideo,
		"webhook_status": status,
	})
	return &DispatchResult{Payload: payload, Leads: len(leads), WebhookStatus: status}, nil
}

func (s *DispatchService) selectedAccount(ctx context.Context, rawID string) (*domain.Account, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return nil, domain.NewValidationError(MsgSelectAccount)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, domain.NewValidationError(MsgUnknownAccount)
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", id, err)
	}
	if account == nil {
		return nil, domain.NewValidationError(MsgUnknownAccount)
	}
	return account, nil
}

func (s *DispatchService) readLeads(fh *multipart.FileHeader) ([]domain.Lead, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, domain.NewValidationError(msgProcessFileFailed + err.Error())
	}
	defer f.Close()

	leads, err := importer.Parse(f)
	if err != nil {
		return nil, domain.NewValidationError(msgProcessFileFailed + err.Error())
	}
	return leads, nil
}

func hasFile(fh *multipart.FileHeader) bool {
	return fh != nil && fh.Filename != ""
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
