package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/pkg/export"
)

const (
	defaultLimit = 1000
	maxLimit     = 10000
)

type predictRequest struct {
	StartDate string   `json:"start_date" binding:"required"`
	EndDate   string   `json:"end_date" binding:"required"`
	Stations  []string `json:"stations"`
	Store     bool     `json:"store"`
}

type predictResponse struct {
	BatchID     string                   `json:"batch_id,omitempty"`
	Count       int                      `json:"count"`
	Stored      *int                     `json:"stored,omitempty"`
	Predictions []model.PredictionResult `json:"predictions"`
}

func (h *handler) predict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	start, end, ok := parseWindow(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if req.Store {
		rep, err := h.deps.Forecaster.RunAndStore(ctx, start, end, req.Stations)
		if err != nil {
			h.fail(c, err)
			return
		}
		stored := rep.Stored
		c.JSON(http.StatusOK, predictResponse{
			BatchID:     rep.BatchID,
			Count:       len(rep.Predictions),
			Stored:      &stored,
			Predictions: nonNil(rep.Predictions),
		})
		return
	}
	res, err := h.deps.Forecaster.RunBatch(ctx, start, end, req.Stations)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, predictResponse{Count: len(res), Predictions: nonNil(res)})
}

type singleRequest struct {
	Date        string   `json:"date" binding:"required"`
	TimeSlot    string   `json:"time_slot" binding:"required"`
	Station     string   `json:"station" binding:"required"`
	District    string   `json:"district"`
	IsTransfer  int      `json:"is_transfer"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	WindSpeed   *float64 `json:"wind_speed"`
}

func (h *handler) predictSingle(c *gin.Context) {
	var req singleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		badRequest(c, "invalid date: "+err.Error())
		return
	}
	slot, err := model.ParseTimeSlot(req.TimeSlot)
	if err != nil {
		badRequest(c, "invalid time_slot: "+err.Error())
		return
	}
	res, err := h.deps.Forecaster.PredictOne(c.Request.Context(), model.HistoricalRecord{
		Date:        date,
		TimeSlot:    slot,
		Station:     strings.TrimSpace(req.Station),
		District:    req.District,
		IsTransfer:  req.IsTransfer != 0,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		WindSpeed:   req.WindSpeed,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prediction": res})
}

func (h *handler) predictions(c *gin.Context) {
	if h.deps.Predictions == nil {
		notConfigured(c, "prediction store")
		return
	}
	f := model.PredictionFilter{Limit: defaultLimit}
	var ok bool
	if f.Start, ok = optionalDate(c, "start_date"); !ok {
		return
	}
	if f.End, ok = optionalDate(c, "end_date"); !ok {
		return
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		badRequest(c, "end_date precedes start_date")
		return
	}
	for _, s := range c.QueryArray("station") {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.Stations = append(f.Stations, part)
			}
		}
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			badRequest(c, "invalid limit parameter, must be a positive integer")
			return
		}
		f.Limit = min(n, maxLimit)
	}
	res, err := h.deps.Predictions.Query(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, gin.H{"count": len(res), "predictions": nonNil(res)})
	case "csv":
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := export.WriteCSV(c.Writer, res); err != nil {
			h.log.Errorf("write csv: %v", err)
		}
	case "html":
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := export.WriteHTML(c.Writer, res); err != nil {
			h.log.Errorf("write chart: %v", err)
		}
	default:
		badRequest(c, "invalid format parameter, expected json, csv or html")
	}
}

func parseWindow(c *gin.Context, startStr, endStr string) (model.Date, model.Date, bool) {
	start, err := model.ParseDate(startStr)
	if err != nil {
		badRequest(c, "invalid start_date: "+err.Error())
		return model.Date{}, model.Date{}, false
	}
	end, err := model.ParseDate(endStr)
	if err != nil {
		badRequest(c, "invalid end_date: "+err.Error())
		return model.Date{}, model.Date{}, false
	}
	return start, end, true
}

func optionalDate(c *gin.Context, key string) (model.Date, bool) {
	s := c.Query(key)
	if s == "" {
		return model.Date{}, true
	}
	d, err := model.ParseDate(s)
	if err != nil {
		badRequest(c, "invalid "+key+": "+err.Error())
		return model.Date{}, false
	}
	return d, true
}

func nonNil(res []model.PredictionResult) []model.PredictionResult {
	if res == nil {
		return []model.PredictionResult{}
	}
	return res
}
