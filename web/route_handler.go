package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/RezaEskandarii/bulkmail/custom_errors"
	"github.com/RezaEskandarii/bulkmail/internal/broadcast"
	"github.com/RezaEskandarii/bulkmail/internal/recipients"
	"github.com/RezaEskandarii/bulkmail/internal/state"
	"github.com/RezaEskandarii/bulkmail/internal/store"
	"github.com/RezaEskandarii/bulkmail/types"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sourceText = "text"
	sourceFile = "file"

	// multipart framing on top of the file itself
	formOverheadBytes = 64 << 10

	maxPageSize = 500
)

var errMissingRecipients = fmt.Errorf("either a file upload (CSV, TXT, XLS, XLSX) or plain text emails are required: %w", custom_errors.ErrNoRecipients)

// BatchSubmitter queues one batch of recipients.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, req types.BatchRequest) (*types.BatchResult, error)
}

type HttpRouteHandler struct {
	// appCtx outlives requests so a disconnecting client does not stop
	// admission of its batch halfway through.
	appCtx            context.Context
	submitter         BatchSubmitter
	logs              store.DeliveryLogStore
	templates         store.TemplateStore
	hub               *broadcast.Hub
	defaultTemplateID int64
	maxUploadBytes    int64
	upgrader          websocket.Upgrader
	logger            *zap.Logger
}

type bulkEmailRequest struct {
	Emails     json.RawMessage `json:"emails"`
	TemplateID int64           `json:"templateId"`
	Subject    string          `json:"subject"`
	Body       string          `json:"body"`
}

type bulkEmailResponse struct {
	Message string `json:"message"`
	types.BatchResult
	Source string `json:"source"`
}

func (h *HttpRouteHandler) handleBulkEmail(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	req, source, err := h.readBatchRequest(w, r)
	if err != nil {
		h.logger.Warn("rejected bulk email request", zap.Int64("user_id", userID), zap.Error(err))
		h.writeFailure(w, err)
		return
	}
	req.UserID = userID
	if req.TemplateID == 0 {
		req.TemplateID = h.defaultTemplateID
	}

	result, err := h.submitter.SubmitBatch(h.appCtx, req)
	if err != nil {
		h.logger.Error("failed bulk email", zap.Int64("user_id", userID), zap.Error(err))
		h.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bulkEmailResponse{
		Message:     "Emails queued successfully",
		BatchResult: *result,
		Source:      source,
	})
}

// readBatchRequest accepts JSON or multipart input. Plain text recipients win
// over an uploaded file.
func (h *HttpRouteHandler) readBatchRequest(w http.ResponseWriter, r *http.Request) (types.BatchRequest, string, error) {
	var req types.BatchRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverheadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return req, "", badRequest("invalid multipart form: %v", err)
		}
		defer r.MultipartForm.RemoveAll()

		id, ok := parseID(r.FormValue("templateId"))
		if !ok {
			return req, "", badRequest("invalid templateId %q", r.FormValue("templateId"))
		}
		req.TemplateID = id
		req.Subject = r.FormValue("subject")
		req.Body = r.FormValue("body")

		if text := r.FormValue("emails"); strings.TrimSpace(text) != "" {
			req.Recipients = recipients.FromText(text)
			return req, sourceText, nil
		}

		file, header, err := r.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return req, "", errMissingRecipients
		}
		if err != nil {
			return req, "", badRequest("invalid file upload: %v", err)
		}
		defer file.Close()
		if header.Size > h.maxUploadBytes {
			return req, "", badRequest("file exceeds %d bytes", h.maxUploadBytes)
		}

		h.logger.Info("processing bulk email file",
			zap.String("file", header.Filename), zap.Int64("size", header.Size))
		req.Recipients, err = recipients.FromFile(header.Filename, file)
		if err != nil {
			return req, "", err
		}
		return req, sourceFile, nil
	}

	var body bulkEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return req, "", badRequest("invalid JSON body: %v", err)
	}
	req.TemplateID = body.TemplateID
	req.Subject = body.Subject
	req.Body = body.Body

	list, err := decodeEmails(body.Emails)
	if err != nil {
		return req, "", err
	}
	if len(list) == 0 {
		return req, "", errMissingRecipients
	}
	req.Recipients = list
	return req, sourceText, nil
}

// decodeEmails accepts either a delimited string or an array of addresses.
func decodeEmails(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return recipients.FromText(text), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, badRequest("emails must be a string or an array of strings")
	}
	return list, nil
}

func (h *HttpRouteHandler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	logs, err := h.logs.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to fetch email logs", zap.Int64("user_id", userID), zap.Error(err))
		h.writeFailure(w, err)
		return
	}
	if logs == nil {
		logs = []types.DeliveryLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *HttpRouteHandler) handleGetLog(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	deliveryLog, err := h.logs.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to fetch email log", zap.Int64("log_id", id), zap.Error(err))
		h.writeFailure(w, err)
		return
	}
	// someone else's log is reported the same as a missing one
	if deliveryLog == nil || deliveryLog.UserID != userID {
		h.writeFailure(w, custom_errors.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, deliveryLog)
}

type statsResponse struct {
	Counts          map[state.DeliveryStatus]int `json:"counts"`
	LiveConnections int                          `json:"liveConnections"`
}

// handleStats lets a reconnecting client catch up on totals it missed while
// its websocket was down.
func (h *HttpRouteHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	counts, err := h.logs.CountByStatus(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count email logs", zap.Int64("user_id", userID), zap.Error(err))
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Counts:          counts,
		LiveConnections: h.hub.ConnectionCount(userID),
	})
}

func (h *HttpRouteHandler) handleAdminListLogs(w http.ResponseWriter, r *http.Request) {
	page, ok := parseID(r.URL.Query().Get("page"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	pageSize, ok := parseID(r.URL.Query().Get("pageSize"))
	if !ok || pageSize > maxPageSize {
		writeError(w, http.StatusBadRequest, "invalid pageSize")
		return
	}

	result, err := h.logs.List(r.Context(), int(page), int(pageSize))
	if err != nil {
		h.logger.Error("failed to page email logs", zap.Error(err))
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAdminDeleteLog removes a finished log. Pending logs still have a job
// in flight and are refused.
func (h *HttpRouteHandler) handleAdminDeleteLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	deliveryLog, err := h.logs.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to fetch email log", zap.Int64("log_id", id), zap.Error(err))
		h.writeFailure(w, err)
		return
	}
	if deliveryLog == nil {
		h.writeFailure(w, custom_errors.ErrNotFound)
		return
	}
	if !deliveryLog.Status.IsTerminal() {
		h.writeFailure(w, fmt.Errorf("delivery log %d is still %s: %w", id, deliveryLog.Status, custom_errors.ErrConflict))
		return
	}

	if err := h.logs.DeleteByID(r.Context(), id); err != nil {
		h.logger.Error("failed to delete email log", zap.Int64("log_id", id), zap.Error(err))
		h.writeFailure(w, err)
		return
	}
	h.logger.Info("email log deleted", zap.Int64("log_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *HttpRouteHandler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context())
	if err != nil {
		h.logger.Error("failed to fetch templates", zap.Error(err))
		h.writeFailure(w, err)
		return
	}
	if templates == nil {
		templates = []types.Template{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *HttpRouteHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("websocket upgrade failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	h.hub.Serve(h.hub.Add(userID, conn))
}

func (h *HttpRouteHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HttpRouteHandler) writeFailure(w http.ResponseWriter, err error) {
	status := custom_errors.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeError(w, status, message)
}

func badRequest(format string, args ...any) error {
	return &custom_errors.ValidationError{Errors: []error{fmt.Errorf(format, args...)}}
}
