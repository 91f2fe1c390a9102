package inbound

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/lo"
	"github.com/shandysiswandi/gosend/internal/campaign/usecase"
	"github.com/shandysiswandi/gosend/internal/pkg/goerror"
	"github.com/shandysiswandi/gosend/internal/pkg/router"
)

// HTTPEndpoint exposes HTTP handlers for campaign dispatch.
type HTTPEndpoint struct {
	uc                 uc
	maxAttachmentBytes int64
}

// StartCampaign sends the uploaded attachment to every recipient and streams
// the run's events as NDJSON.
// @Summary Start campaign
// @Description Validates the form, then streams one JSON record per dispatch event until the run ends.
// @Tags Campaign
// @Accept multipart/form-data
// @Produce application/x-ndjson
// @Param sender_email formData string true "Sender address"
// @Param sender_name formData string false "Sender display name"
// @Param password formData string true "Relay app password"
// @Param subject formData string true "Subject"
// @Param body formData string true "Plain text body"
// @Param recipients formData string true "JSON array of recipient addresses"
// @Param cv formData file true "PDF attachment"
// @Param Idempotency-Key header string false "Deduplicates repeated submissions"
// @Success 200 {string} string "NDJSON event stream"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 409 {object} router.errorResponse "Campaign already running or sent"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 429 {object} router.errorResponse "Too many campaigns running"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/campaign/send [post]
func (h *HTTPEndpoint) StartCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAttachmentBytes+formOverheadBytes)
	in, err := h.startCampaignInput(&router.Request{Request: r})
	if err != nil {
		router.WriteError(ctx, w, err)
		return
	}

	events, err := h.uc.StartCampaign(ctx, in)
	if err != nil {
		router.WriteError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for ev := range events {
		record := toEventRecord(ev)
		if record == nil {
			continue
		}
		if err := enc.Encode(record); err != nil {
			// returning cancels the request context, which stops the run
			slog.WarnContext(ctx, "failed to write campaign event", "error", err)
			return
		}
		flusher.Flush()
	}
}

func (h *HTTPEndpoint) startCampaignInput(r *router.Request) (usecase.StartCampaignInput, error) {
	if err := r.ParseMultipart(h.maxAttachmentBytes + formOverheadBytes); err != nil {
		return usecase.StartCampaignInput{}, err
	}

	recipients, err := parseRecipients(r.FormValue("recipients"))
	if err != nil {
		return usecase.StartCampaignInput{}, err
	}

	filename, content, err := r.ReadFormFile("cv", h.maxAttachmentBytes)
	if err != nil {
		return usecase.StartCampaignInput{}, err
	}

	return usecase.StartCampaignInput{
		SenderAddress:  r.GetForm("sender_email"),
		SenderName:     r.GetForm("sender_name"),
		SenderSecret:   r.FormValue("password"),
		Subject:        r.FormValue("subject"),
		Body:           r.FormValue("body"),
		Recipients:     recipients,
		AttachmentName: filename,
		Attachment:     content,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}, nil
}

// ProbeCredentials checks the relay credentials without sending anything.
// @Summary Probe relay credentials
// @Description Connects to the relay, authenticates, and disconnects.
// @Tags Campaign
// @Accept json
// @Produce json
// @Param request body ProbeCredentialsRequest true "Credentials payload"
// @Success 200 {object} router.successResponse{data=ProbeCredentialsResponse} "Authentication successful"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Credentials rejected"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Relay error"
// @Router /api/v1/campaign/probe [post]
func (h *HTTPEndpoint) ProbeCredentials(r *router.Request) (any, error) {
	var req ProbeCredentialsRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	if err := h.uc.ProbeCredentials(r.Context(), usecase.ProbeCredentialsInput{
		SenderAddress: req.SenderEmail,
		SenderSecret:  req.Password,
	}); err != nil {
		return nil, err
	}

	return ProbeCredentialsResponse{}, nil
}

func parseRecipients(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, goerror.NewInvalidFormat("recipients must be a JSON array of strings")
	}

	return lo.Compact(lo.Map(list, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})), nil
}
