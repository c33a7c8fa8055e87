package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/parse"
	"production-tracker-backend/internal/record"
)

var (
	uniqueIDRecord  = record.Spec{Identity: []string{"code"}, ReadOnly: []string{"date_created", "matches_schemas"}}
	workOrderRecord = record.Spec{Identity: []string{"code"}, ReadOnly: []string{"date_created", "last_updated"}}
)

func readPayload(c *gin.Context) (record.Payload, []byte, error) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, nil, apperr.NewValidation(apperr.NonFieldErrors, "Could not read request body.")
	}
	p, err := record.Decode(raw)
	return p, raw, err
}

// GetOrCreateUniqueID handles POST /api/uids.
func (h *Handler) GetOrCreateUniqueID(c *gin.Context) {
	p, _, err := readPayload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var u model.UniqueID
	identity, err := uniqueIDRecord.Build(h.store.DB(), p, &u)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out, isNew, err := h.store.GetOrCreateUniqueID(c.Request.Context(), &u, identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(created(isNew), out)
}

// GenerateBarcode handles POST /api/uids/barcode.
func (h *Handler) GenerateBarcode(c *gin.Context) {
	code, err := h.barcodes.Next(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": code})
}

// GetOrCreateWorkOrder handles POST /api/work-orders.
func (h *Handler) GetOrCreateWorkOrder(c *gin.Context) {
	p, _, err := readPayload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var w model.WorkOrder
	identity, err := workOrderRecord.Build(h.store.DB(), p, &w)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out, isNew, err := h.store.GetOrCreateWorkOrder(c.Request.Context(), &w, identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(created(isNew), out)
}

func (h *Handler) GetSku(c *gin.Context) {
	sku, err := h.store.GetSku(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sku)
}

func (h *Handler) GetOperator(c *gin.Context) {
	op, err := h.store.GetOperator(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

func (h *Handler) GetMachine(c *gin.Context) {
	m, err := h.store.GetMachine(c.Request.Context(), c.Param("hostname"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// SearchSkus handles GET /api/skus?q=.
func (h *Handler) SearchSkus(c *gin.Context) {
	rows, err := h.store.SearchSkus(c.Request.Context(), parse.Terms(c.Query("q")), h.server.MaxResults)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, searchResponse(rows, h.server.MaxResults))
}

// SearchOperators handles GET /api/operators?q=.
func (h *Handler) SearchOperators(c *gin.Context) {
	rows, err := h.store.SearchOperators(c.Request.Context(), parse.Terms(c.Query("q")), h.server.MaxResults)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, searchResponse(rows, h.server.MaxResults))
}

// SearchMachines handles GET /api/machines?q=.
func (h *Handler) SearchMachines(c *gin.Context) {
	rows, err := h.store.SearchMachines(c.Request.Context(), parse.Terms(c.Query("q")), h.server.MaxResults)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, searchResponse(rows, h.server.MaxResults))
}

// CreateZeroingLog handles POST /api/zeroing-logs.
func (h *Handler) CreateZeroingLog(c *gin.Context) {
	var z model.ZeroingLog
	if err := bindJSON(c, &z); err != nil {
		h.respondError(c, err)
		return
	}
	z.ID = 0
	if err := h.store.CreateZeroingLog(c.Request.Context(), &z); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, z)
}

// ListProductionSteps handles GET /api/production-steps, the choices accepted
// for a machine's step and the production_step filters.
func (h *Handler) ListProductionSteps(c *gin.Context) {
	c.JSON(http.StatusOK, model.ProductionSteps())
}
