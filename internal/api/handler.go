package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"production-tracker-backend/config"
	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/record"
	"production-tracker-backend/internal/session"
	"production-tracker-backend/internal/store"
	"production-tracker-backend/internal/uid"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	tracker  *session.Tracker
	barcodes *uid.BarcodeGenerator
	webpush  *webpush.Options
	server   config.ServerConfig
	log      *logger.Logger
}

// NewHandler creates a new API handler. webpushOptions is nil when push alerts are disabled.
func NewHandler(s store.Store, tracker *session.Tracker, server config.ServerConfig, webpushOptions *webpush.Options, log *logger.Logger) *Handler {
	return &Handler{
		store:    s,
		tracker:  tracker,
		barcodes: uid.NewBarcodeGenerator(s),
		webpush:  webpushOptions,
		server:   server,
		log:      log,
	}
}

// respondError maps err onto the HTTP status of its kind.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		verr      *apperr.ValidationError
		nf        *apperr.NotFoundError
		integrity *apperr.IntegrityError
		exhausted *apperr.ExhaustedError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, verr.Fields)
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"detail": nf.Error()})
	case errors.Is(err, apperr.ErrNotLoggedIn):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Machine not logged in"})
	case errors.As(err, &integrity), errors.As(err, &exhausted):
		h.log.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.log.Error("unexpected error", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
	_ = c.Error(err)
}

// bindJSON decodes and validates the request body into obj.
func bindJSON(c *gin.Context, obj any) error {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return apperr.NewValidation(apperr.NonFieldErrors, "Could not read request body.")
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := record.Unmarshal(raw, obj); err != nil {
		return err
	}
	return record.Validate(obj)
}

// created picks 201 for new records and 200 for existing ones.
func created(isNew bool) int {
	if isNew {
		return http.StatusCreated
	}
	return http.StatusOK
}

// searchResponse trims a max+1 result set down to max and flags the overflow.
func searchResponse[T any](rows []T, max int) gin.H {
	more := len(rows) > max
	if more {
		rows = rows[:max]
	}
	return gin.H{"results": rows, "has_more": more}
}
