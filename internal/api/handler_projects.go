package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/export"
	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/parse"
	"production-tracker-backend/internal/project"
	"production-tracker-backend/internal/record"
	"production-tracker-backend/internal/store"
)

var itemRecords = map[model.ItemKind]record.Spec{
	model.ItemKindBulk: {
		Identity: []string{"work_order", "sku"},
		ReadOnly: []string{"id", "kind", "quantity_succeeded"},
	},
	model.ItemKindSingle: {
		Identity: []string{"uid", "sku"},
		Exclude:  []string{"contains"},
		ReadOnly: []string{"id", "kind", "quantity_succeeded"},
	},
}

// projectHandler serves the item, event and configuration routes of one project.
type projectHandler struct {
	*Handler
	project project.Project
}

// ListProjects handles GET /api/projects.
func (h *Handler) ListProjects(c *gin.Context) {
	type projectView struct {
		Name       string         `json:"name"`
		Title      string         `json:"title"`
		ItemKind   model.ItemKind `json:"item_kind"`
		EventKind  string         `json:"event_kind"`
		ConfigKind string         `json:"config_kind,omitempty"`
	}
	out := []projectView{}
	for _, p := range project.All() {
		out = append(out, projectView{p.Name, p.Title, p.ItemKind, p.EventKind, p.ConfigKind})
	}
	c.JSON(http.StatusOK, out)
}

func (h *projectHandler) pathID(c *gin.Context) (uint64, error) {
	return parse.ID("pk", c.Param("id"))
}

// GetOrCreateItem handles POST /api/<project>/items.
func (h *projectHandler) GetOrCreateItem(c *gin.Context) {
	p, _, err := readPayload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	item := &model.Item{Kind: h.project.ItemKind}
	identity, err := itemRecords[h.project.ItemKind].Build(h.store.DB(), p, item)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out, isNew, err := h.store.GetOrCreateItem(c.Request.Context(), item, identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(created(isNew), out)
}

// GetItem handles GET /api/<project>/items/:id.
func (h *projectHandler) GetItem(c *gin.Context) {
	id, err := h.pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	item, err := h.store.GetItem(c.Request.Context(), id)
	if err == nil && item.Kind != h.project.ItemKind {
		err = apperr.NotFound("item", id)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// UpdateItem handles PUT /api/<project>/items/:id.
func (h *projectHandler) UpdateItem(c *gin.Context) {
	id, err := h.pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var upd store.ItemUpdate
	if err := bindJSON(c, &upd); err != nil {
		h.respondError(c, err)
		return
	}
	item, err := h.store.UpdateItem(c.Request.Context(), id, h.project.ItemKind, upd)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// PastEvents handles GET /api/<project>/items/:id/past-events.
func (h *projectHandler) PastEvents(c *gin.Context) {
	id, err := h.pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	step, err := productionStep(c.Query("production_step"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.pastEvents(c, store.PastEventsQuery{ItemID: id, ProductionStep: step})
}

// PastEventsByUID handles GET /api/<project>/past-events/:uid. An unknown UID
// gets an all-zero summary.
func (h *projectHandler) PastEventsByUID(c *gin.Context) {
	step, err := productionStep(c.Query("production_step"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.pastEvents(c, store.PastEventsQuery{ItemUID: c.Param("uid"), ProductionStep: step})
}

func (h *projectHandler) pastEvents(c *gin.Context, q store.PastEventsQuery) {
	q.Kind = h.project.EventKind
	summary, err := h.store.PastEvents(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type startEventRequest struct {
	Item      uint64 `json:"item" binding:"required"`
	Machine   string `json:"machine" binding:"required"`
	Operator  string `json:"operator" binding:"required"`
	WorkOrder string `json:"work_order" binding:"required"`
}

// StartEvent handles POST /api/<project>/events. The machine's usage session
// is pinged on behalf of the operator in the same transaction as the insert.
func (h *projectHandler) StartEvent(c *gin.Context) {
	var req startEventRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	ev, err := model.NewEvent(h.project.EventKind)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ev.ItemID, ev.MachineHostname, ev.OperatorCode, ev.WorkOrderCode = req.Item, req.Machine, req.Operator, req.WorkOrder

	var timedOut *model.MachineUsage
	err = h.store.CreateEvent(c.Request.Context(), ev, func(tx *gorm.DB) (err error) {
		_, timedOut, err = h.tracker.RecordActivityTx(tx, ev.MachineHostname, ev.OperatorCode)
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.tracker.NotifyTimedOut(timedOut)
	c.JSON(http.StatusCreated, gin.H{
		"pk":         ev.ID,
		"item":       ev.ItemID,
		"machine":    ev.MachineHostname,
		"operator":   ev.OperatorCode,
		"work_order": ev.WorkOrderCode,
	})
}

type finishEventRequest struct {
	Failed        *bool            `json:"failed"`
	Completed     *bool            `json:"completed"`
	FailState     *string          `json:"fail_state"`
	LogTimepoints *[]float64       `json:"log_timepoints"`
	Details       *json.RawMessage `json:"details"`
}

// FinishEvent handles PUT /api/<project>/events/:id. References stay as they
// were when the event started.
func (h *projectHandler) FinishEvent(c *gin.Context) {
	id, err := h.pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req finishEventRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	ev, err := h.store.GetEvent(ctx, h.project.EventKind, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if req.Failed != nil {
		ev.Failed = *req.Failed
	}
	if req.Completed != nil {
		ev.Completed = *req.Completed
	}
	if req.FailState != nil {
		ev.FailState = *req.FailState
	}
	if req.LogTimepoints != nil {
		ev.LogTimepoints = *req.LogTimepoints
	}
	if req.Details != nil {
		if err := record.Unmarshal(*req.Details, ev.Details); err != nil {
			h.respondError(c, err)
			return
		}
		if err := record.Validate(ev.Details); err != nil {
			h.respondError(c, err)
			return
		}
	}
	if err := h.store.SaveEvent(ctx, ev); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// GetEvent handles GET /api/<project>/events/:id.
func (h *projectHandler) GetEvent(c *gin.Context) {
	id, err := h.pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ev, err := h.store.GetEvent(c.Request.Context(), h.project.EventKind, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// EventLogs handles GET /api/<project>/events/:id/logs.
func (h *projectHandler) EventLogs(c *gin.Context) {
	id, err := h.pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ev, err := h.store.GetEvent(c.Request.Context(), h.project.EventKind, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	logs, err := ev.GetLogResults()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// SearchEvents handles GET /api/<project>/events/search.
func (h *projectHandler) SearchEvents(c *gin.Context) {
	f, err := h.eventFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	page, err := parse.Page(c.Query("page"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	out, err := h.store.SearchEvents(c.Request.Context(), f, page, h.server.MaxResults)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// FailStates handles GET /api/<project>/events/fail-states.
func (h *projectHandler) FailStates(c *gin.Context) {
	states, err := h.store.FailStates(c.Request.Context(), h.project.EventKind)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, states)
}

// SingleEventLogCSV handles GET /api/<project>/events/:id/logs/csv.
func (h *projectHandler) SingleEventLogCSV(c *gin.Context) {
	id, err := h.pathID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.recordsLogs() {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("%s events don't record any logs", h.project.EventKind)})
		return
	}
	ev, err := h.store.GetEvent(c.Request.Context(), h.project.EventKind, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(ev.LogTimepoints) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("event %d doesn't have any logs recorded", id)})
		return
	}
	h.writeCSV(c, fmt.Sprintf("event_%d.csv", id), []model.Event{*ev}, export.WriteLogs)
}

// MultiEventLogCSV handles GET /api/<project>/events/csv/logs.
func (h *projectHandler) MultiEventLogCSV(c *gin.Context) {
	if !h.recordsLogs() {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("%s events don't record any logs", h.project.EventKind)})
		return
	}
	h.multiEventCSV(c, "event_logs", export.WriteLogs)
}

// MultiEventDetailsCSV handles GET /api/<project>/events/csv/details.
func (h *projectHandler) MultiEventDetailsCSV(c *gin.Context) {
	h.multiEventCSV(c, "event_details", export.WriteDetails)
}

func (h *projectHandler) multiEventCSV(c *gin.Context, prefix string, write func(io.Writer, []model.Event) error) {
	f, err := h.eventFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	total, err := h.store.CountEvents(ctx, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	switch {
	case total == 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Event filters returned no results."})
		return
	case total > int64(h.server.MaxCSVEventCount):
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
			"Event filters returned more than %d results; please refine your search.", h.server.MaxCSVEventCount)})
		return
	}
	events, err := h.store.ListEvents(ctx, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.writeCSV(c, export.Filename(prefix, time.Now()), events, write)
}

func (h *projectHandler) writeCSV(c *gin.Context, filename string, events []model.Event, write func(io.Writer, []model.Event) error) {
	var buf bytes.Buffer
	if err := write(&buf, events); err != nil {
		if errors.Is(err, export.ErrNoLogFields) {
			c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
			return
		}
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// recordsLogs reports whether the project's events carry log arrays.
func (h *projectHandler) recordsLogs() bool {
	details, err := model.NewEventDetails(h.project.EventKind)
	if err != nil {
		return false
	}
	src, ok := details.(model.LogSource)
	return ok && len(src.LogFields()) > 0
}

// eventFilter reads the event search filters from the query string.
func (h *projectHandler) eventFilter(c *gin.Context) (store.EventFilter, error) {
	f := store.EventFilter{
		Kind:       h.project.EventKind,
		ItemSku:    c.Query("item_sku"),
		ItemUID:    c.Query("item_uid"),
		Machine:    c.Query("machine"),
		Operator:   c.Query("operator"),
		WorkOrder:  c.Query("work_order"),
		FailStates: c.QueryArray("fail_state"),
	}
	verr := &apperr.ValidationError{}
	collect := func(err error) {
		var v *apperr.ValidationError
		if errors.As(err, &v) {
			for field, msgs := range v.Fields {
				for _, m := range msgs {
					verr.Add(field, m)
				}
			}
		}
	}

	var err error
	if f.ProductionStep, err = productionStep(c.Query("production_step")); err != nil {
		collect(err)
	}
	if f.FromDate, err = parse.Date("from_date", c.Query("from_date")); err != nil {
		collect(err)
	}
	if f.ToDate, err = parse.Date("to_date", c.Query("to_date")); err != nil {
		collect(err)
	}
	if f.Failed, err = parse.TriState("failed", c.Query("failed")); err != nil {
		collect(err)
	}
	if f.Completed, err = parse.TriState("completed", c.Query("completed")); err != nil {
		collect(err)
	}
	if !verr.Empty() {
		return store.EventFilter{}, verr
	}
	return f, nil
}

func productionStep(raw string) (model.ProductionStep, error) {
	if raw == "" {
		return "", nil
	}
	step := model.ProductionStep(raw)
	if !step.Valid() {
		return "", apperr.NewValidation("production_step", "%q is not a valid choice.", raw)
	}
	return step, nil
}

// GetConfiguration handles GET /api/<project>/configurations/:sku.
func (h *projectHandler) GetConfiguration(c *gin.Context) {
	cfg, err := h.store.GetConfiguration(c.Request.Context(), h.project.ConfigKind, c.Param("sku"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// PutConfiguration handles PUT /api/<project>/configurations/:sku. The body is
// either the settings object or a configuration carrying one under "settings".
func (h *projectHandler) PutConfiguration(c *gin.Context) {
	p, raw, err := readPayload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	settings := raw
	if nested, ok := p["settings"]; ok {
		settings = nested
	}
	cfg, isNew, err := h.store.PutConfiguration(c.Request.Context(), h.project.ConfigKind, c.Param("sku"), settings)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(created(isNew), cfg)
}

// SearchConfigurableSkus handles GET /api/<project>/configurable-skus?q=.
func (h *projectHandler) SearchConfigurableSkus(c *gin.Context) {
	rows, err := h.store.SearchConfigurableSkus(c.Request.Context(), h.project.ConfigKind, parse.Terms(c.Query("q")), h.server.MaxResults)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, searchResponse(rows, h.server.MaxResults))
}
