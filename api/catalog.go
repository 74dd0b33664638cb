package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/core/runlog"
)

func (h *handler) stations(c *gin.Context) {
	if h.deps.Catalog == nil {
		notConfigured(c, "station catalog")
		return
	}
	st, err := h.deps.Catalog.Stations(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if st == nil {
		st = []model.Station{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(st), "stations": st})
}

func (h *handler) summary(c *gin.Context) {
	if h.deps.Catalog == nil {
		notConfigured(c, "station catalog")
		return
	}
	s, err := h.deps.Catalog.Summary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// rawRecords lists the newest historical records, optionally for one
// station.
func (h *handler) rawRecords(c *gin.Context) {
	if h.deps.Catalog == nil {
		notConfigured(c, "station catalog")
		return
	}
	limit := 10
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			badRequest(c, "invalid limit parameter, must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}
	recs, err := h.deps.Catalog.Recent(c.Request.Context(), c.Query("station"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if recs == nil {
		recs = []model.HistoricalRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(recs), "records": recs})
}

// runs lists run log entries. since/until take RFC3339 timestamps.
func (h *handler) runs(c *gin.Context) {
	if h.deps.Runs == nil {
		notConfigured(c, "run log")
		return
	}
	q := runlog.Query{Station: c.Query("station"), Limit: 100}
	for key, dst := range map[string]*time.Time{"since": &q.Since, "until": &q.Until} {
		s := c.Query(key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(c, "invalid "+key+" parameter, expected RFC3339")
			return
		}
		*dst = t
	}
	if v := c.Query("failed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "invalid failed parameter")
			return
		}
		q.FailedOnly = b
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			badRequest(c, "invalid limit parameter, must be a positive integer")
			return
		}
		q.Limit = n
	}
	recs, err := h.deps.Runs.Query(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	if recs == nil {
		recs = []runlog.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(recs), "runs": recs})
}
