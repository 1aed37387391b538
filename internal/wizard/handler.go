package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/availability"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/backend"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/bookings"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/otp"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

// BatchLister reads back the recorded bookings of a submission batch.
type BatchLister interface {
	ListByBatch(ctx context.Context, batchID string) ([]booking.Record, error)
}

// Handler exposes wizard sessions over HTTP.
type Handler struct {
	registry *Registry
	catalog  *catalog.Catalog
	verifier *otp.Verifier
	batches  BatchLister
	logger   *logging.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBatches enables GET /batches/{batchID} backed by the booking ledger.
func WithBatches(b BatchLister) HandlerOption {
	return func(h *Handler) { h.batches = b }
}

// NewHandler creates the wizard HTTP handler.
func NewHandler(registry *Registry, cat *catalog.Catalog, verifier *otp.Verifier, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{registry: registry, catalog: cat, verifier: verifier, logger: logger.Component("wizard_http")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the wizard endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/clinics", h.ListClinics)
	r.Get("/addresses", h.ListAddresses)
	r.Post("/bookings/{bookingID}/otp", h.RedeemOTP)
	r.Get("/batches/{batchID}", h.GetBatch)

	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Post("/clinic", h.SelectClinic)
		r.Post("/services/{serviceID}", h.ToggleService)
		r.Post("/doctor", h.SelectDoctor)
		r.Post("/address", h.SelectAddress)
		r.Post("/month", h.SetMonth)
		r.Post("/date", h.SelectDate)
		r.Post("/time", h.SelectTime)
		r.Post("/contact", h.SetContact)
		r.Post("/advance", h.Advance)
		r.Post("/back", h.Back)
		r.Post("/reset", h.Reset)
		r.Post("/submit", h.Submit)
		r.Get("/availability/stream", h.StreamAvailability)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	View  *View  `json:"view,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, view *View) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("wizard request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: messageFor(err, status), View: view})
}

// messageFor shows local request errors verbatim. Backend and transport
// failures go through booking.UserMessage.
func messageFor(err error, status int) string {
	if status < http.StatusInternalServerError && backend.StatusCode(err) == 0 {
		return err.Error()
	}
	return booking.UserMessage(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, otp.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, otp.ErrMissingBooking):
		return http.StatusBadRequest
	case booking.IsValidation(err),
		errors.Is(err, ErrUnknownService),
		errors.Is(err, ErrIncompatibleService),
		errors.Is(err, ErrUnknownDoctor),
		errors.Is(err, ErrIncompatibleDoctor),
		errors.Is(err, ErrDayUnavailable),
		errors.Is(err, ErrUnknownSlot),
		errors.Is(err, ErrNoClinic),
		errors.Is(err, availability.ErrInvalidMonth):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest), errors.Is(err, bookings.ErrInvalidBatchID):
		return http.StatusBadRequest
	case rejectedByBackend(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// rejectedByBackend reports a 4xx answer from the booking backend.
func rejectedByBackend(err error) bool {
	code := backend.StatusCode(err)
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError
}

var errBadRequest = errors.New("invalid request body")

// ErrBatchNotFound is returned for batches the caller has no records of.
var ErrBatchNotFound = errors.New("wizard: batch not found")

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errBadRequest
	}
	return nil
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.registry.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err, nil)
		return nil, false
	}
	return s, true
}

func (h *Handler) respond(w http.ResponseWriter, view View, err error) {
	if err != nil {
		h.writeError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListClinics returns the bookable clinics.
func (h *Handler) ListClinics(w http.ResponseWriter, r *http.Request) {
	clinics, err := h.catalog.Clinics(r.Context())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clinics": clinics})
}

// ListAddresses returns the caller's saved addresses.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.catalog.Addresses(r.Context())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": addrs})
}

// CreateSession starts a wizard.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Create(r.Context())
	writeJSON(w, http.StatusCreated, s.View())
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SelectClinic(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		ClinicID catalog.ClinicID `json:"clinic_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	view, err := s.SelectClinic(r.Context(), body.ClinicID)
	h.respond(w, view, err)
}

func (h *Handler) ToggleService(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "serviceID"))
	if err != nil {
		h.writeError(w, errBadRequest, nil)
		return
	}
	res, view, err := s.ToggleService(catalog.ServiceID(id))
	if err != nil {
		h.writeError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"toggle": res, "view": view})
}

func (h *Handler) SelectDoctor(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		DoctorID catalog.StaffID `json:"doctor_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	view, err := s.SelectDoctor(body.DoctorID)
	h.respond(w, view, err)
}

func (h *Handler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Address *booking.AddressRef `json:"address"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	view, err := s.SelectAddress(body.Address)
	h.respond(w, view, err)
}

func (h *Handler) SetMonth(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	view, err := s.SetMonth(body.Year, time.Month(body.Month))
	h.respond(w, view, err)
}

func (h *Handler) SelectDate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Date string `json:"date"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	date, err := booking.ParseDate(strings.TrimSpace(body.Date))
	if err != nil {
		h.writeError(w, errBadRequest, nil)
		return
	}
	view, err := s.SelectDate(date)
	h.respond(w, view, err)
}

func (h *Handler) SelectTime(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Time string `json:"time"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	view, err := s.SelectTime(body.Time)
	h.respond(w, view, err)
}

func (h *Handler) SetContact(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body booking.Contact
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	view, err := s.SetContact(body)
	h.respond(w, view, err)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := s.Advance()
	h.respond(w, view, err)
}

func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := s.Back()
	h.respond(w, view, err)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Reset())
}

// Submit books the draft. A failed batch answers 422 with the backend's
// message and the bookings it did create.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body booking.Contact
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	out, view, err := s.Submit(r.Context(), body)
	if err != nil {
		h.writeError(w, err, &view)
		return
	}
	status := http.StatusCreated
	if !out.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]any{"outcome": out, "view": view})
}

// RedeemOTP confirms a booking with its one-time code.
func (h *Handler) RedeemOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err, nil)
		return
	}
	res, err := h.verifier.Redeem(r.Context(), chi.URLParam(r, "bookingID"), body.Code)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": res.Message, "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetBatch lists the ledger records of one of the caller's submission
// batches.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if h.batches == nil {
		h.writeError(w, ErrBatchNotFound, nil)
		return
	}
	batchID := chi.URLParam(r, "batchID")
	records, err := h.batches.ListByBatch(r.Context(), batchID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if len(records) == 0 {
		h.writeError(w, ErrBatchNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "bookings": records})
}

type streamMessage struct {
	Type  string                `json:"type"`
	Days  *availability.DayMap  `json:"days,omitempty"`
	Slots *availability.SlotMap `json:"slots,omitempty"`
}

// StreamAvailability pushes day and slot snapshots over a WebSocket as
// probes settle. The stream ends with a "closed" message when the session
// is deleted or expires.
func (h *Handler) StreamAvailability(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveStream(conn, s)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveStream(conn *websocket.Conn, s *Session) {
	updates, unsubscribe := s.Resolver().Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		var ignored json.RawMessage
		for {
			if err := websocket.JSON.Receive(conn, &ignored); err != nil {
				return
			}
		}
	}()

	view := s.View()
	if err := websocket.JSON.Send(conn, streamMessage{Type: "snapshot", Days: view.Days, Slots: view.Slots}); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			h.logger.Debug("availability stream closed", "session_id", s.ID())
			return
		case <-s.Done():
			_ = websocket.JSON.Send(conn, streamMessage{Type: "closed"})
			_ = conn.Close()
			h.logger.Debug("availability stream ended with session", "session_id", s.ID())
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			msg := streamMessage{Type: u.Mode, Days: u.Days, Slots: u.Slots}
			if err := websocket.JSON.Send(conn, msg); err != nil {
				return
			}
		}
	}
}
