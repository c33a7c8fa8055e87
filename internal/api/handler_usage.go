package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/parse"
	"production-tracker-backend/internal/session"
)

// MachinePing handles POST /api/machines/ping.
func (h *Handler) MachinePing(c *gin.Context) {
	var req session.PingRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	usage, err := h.tracker.MachinePing(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// LoggedInMachines handles GET /api/machines/logged-in.
func (h *Handler) LoggedInMachines(c *gin.Context) {
	machines, err := h.tracker.LoggedInMachines(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

// ActiveDuration handles GET /api/machines/usage/duration.
func (h *Handler) ActiveDuration(c *gin.Context) {
	q := session.DurationQuery{Machine: c.Query("machine")}
	verr := &apperr.ValidationError{}
	var err error
	if q.From, err = parse.Date("date_from", c.Query("date_from")); err != nil {
		verr.Add("date_from", "Enter a valid date.")
	}
	if q.To, err = parse.Date("date_to", c.Query("date_to")); err != nil {
		verr.Add("date_to", "Enter a valid date.")
	}
	if !verr.Empty() {
		h.respondError(c, verr)
		return
	}

	d, err := h.tracker.ActiveDuration(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duration": d.Seconds()})
}
