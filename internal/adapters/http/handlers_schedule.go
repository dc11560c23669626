package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"academy/internal/domain/batch"
	"academy/internal/domain/session"
)

// saveSlotRequest is the body of PUT /api/batches/{batchID}/schedule/{number}.
// RecordID and CurrentStatus describe the slot as the client last saw it;
// when present they must still match the stored schedule.
type saveSlotRequest struct {
	RecordID           string  `json:"record_id"`
	CurrentStatus      string  `json:"current_status"`
	Title              *string `json:"title" validate:"omitempty,max=200"`
	Date               *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time               *string `json:"time" validate:"omitempty,datetime=15:04"`
	MeetLink           *string `json:"meet_link" validate:"omitempty,url"`
	Note               *string `json:"note" validate:"omitempty,max=2000"`
	Status             *string `json:"status"`
	CancellationReason *string `json:"cancellation_reason" validate:"omitempty,max=500"`
	IsCurrent          *bool   `json:"is_current"`
}

func (req saveSlotRequest) patch() session.Patch {
	p := session.Patch{
		Title:              req.Title,
		Date:               req.Date,
		Time:               req.Time,
		MeetLink:           req.MeetLink,
		Note:               req.Note,
		CancellationReason: req.CancellationReason,
		IsCurrent:          req.IsCurrent,
	}
	if req.Status != nil {
		st := session.NormalizeStatus(*req.Status)
		p.Status = &st
	}
	return p
}

// saveBatchRequest is the body of PUT /api/batches/{batchID}.
type saveBatchRequest struct {
	Name          string `json:"name" validate:"max=200"`
	TotalSessions *int   `json:"total_sessions" validate:"omitempty,min=0,max=1000"`
	TeacherEmail  string `json:"teacher_email" validate:"omitempty,email"`
}

// handleListBatches handles GET /api/batches.
func (h *handlers) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.svc.ListBatches(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if batches == nil {
		batches = []batch.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// handleSaveBatch handles PUT /api/batches/{batchID}.
// PRE: body is a saveBatchRequest
// POST: The batch is created or replaced and echoed back
func (h *handlers) handleSaveBatch(w http.ResponseWriter, r *http.Request) {
	var req saveBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	b := batch.Batch{
		ID:            chi.URLParam(r, "batchID"),
		Name:          strings.TrimSpace(req.Name),
		TotalSessions: req.TotalSessions,
		TeacherEmail:  strings.TrimSpace(req.TeacherEmail),
	}
	if err := h.svc.SaveBatch(r.Context(), b); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleGetSchedule handles GET /api/batches/{batchID}/schedule.
func (h *handlers) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.svc.LoadSchedule(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// handleSaveSlot handles PUT /api/batches/{batchID}/schedule/{number}.
// The slot is resolved from a fresh load so the transition is checked
// against the stored status, not the client's copy.
// PRE: number is a positive integer; body is a saveSlotRequest
// POST: Returns the stored record, or 409 when the client's view is stale
func (h *handlers) handleSaveSlot(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		writeError(w, http.StatusBadRequest, apiError{Error: session.ErrInvalidSessionNumber.Error(), Code: "invalid_input"})
		return
	}
	var req saveSlotRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	schedule, err := h.svc.LoadSchedule(r.Context(), batchID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	slot := schedule.Slot(number)
	if stale(req, slot) {
		writeError(w, http.StatusConflict, apiError{Error: "slot changed since it was loaded; reload the schedule", Code: "stale_slot", Retryable: true})
		return
	}

	saved, err := h.svc.SaveSlot(r.Context(), batchID, slot, req.patch())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// stale reports whether the client's record id or status no longer match.
func stale(req saveSlotRequest, slot session.Slot) bool {
	if req.RecordID != "" && req.RecordID != slot.RecordID {
		return true
	}
	if req.RecordID == "" && slot.Bound() && req.CurrentStatus != "" {
		// The client saw a placeholder that has since been created.
		return true
	}
	if req.CurrentStatus != "" && !strings.EqualFold(strings.TrimSpace(req.CurrentStatus), string(slot.Status)) {
		return true
	}
	return false
}

// handleDeleteSlot handles DELETE /api/sessions/{recordID}.
func (h *handlers) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSlot(r.Context(), chi.URLParam(r, "recordID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportSchedule handles POST /api/batches/{batchID}/schedule/import.
// The body is the raw sheet, capped at maxImportBytes.
// PRE: body is UTF-8 comma-separated text
// POST: Returns the import summary; the client reloads the schedule
func (h *handlers) handleImportSchedule(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, apiError{
				Error: "import file exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
				Code:  "payload_too_large",
			})
			return
		}
		writeError(w, http.StatusBadRequest, apiError{Error: "could not read request body", Code: "invalid_body"})
		return
	}

	result, err := h.svc.ImportSchedule(r.Context(), chi.URLParam(r, "batchID"), string(raw))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetTemplate handles GET /api/batches/{batchID}/schedule/template.csv.
func (h *handlers) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	sheet, err := h.svc.RenderTemplate(r.Context(), batchID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+templateFilename(batchID)+`"`)
	_, _ = io.WriteString(w, sheet)
}

// templateFilename keeps only filename-safe characters of the batch id.
func templateFilename(batchID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, batchID)
	if safe == "" {
		safe = "batch"
	}
	return safe + "-sessions.csv"
}

// handleHealth handles GET /healthz.
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			logRequestError(r, err)
			writeError(w, http.StatusServiceUnavailable, apiError{Error: "not ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
