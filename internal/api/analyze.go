package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"phishguard/backend/internal/engine"
	"phishguard/backend/internal/scoring"
	"phishguard/backend/internal/store"
	"phishguard/backend/internal/util"
)

func (s *Server) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderError(c, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	if req.DeceptiveLinksCount < 0 {
		req.DeceptiveLinksCount = 0
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	timer := util.StartTimer()
	result := s.engine.Analyze(c.Request.Context(), engine.Request{
		RequestID:           req.RequestID,
		URL:                 req.URL,
		Text:                req.Text,
		Screenshot:          req.Screenshot,
		Sensitivity:         scoring.Sensitivity(req.Sensitivity),
		DeceptiveLinksCount: req.DeceptiveLinksCount,
	})
	elapsed := timer.Elapsed()
	s.metrics.observe(result, elapsed)

	response := ResponseFromResult(result)
	s.audit(result, req, elapsed.Milliseconds())
	s.notifier.Broadcast(ScanEvent{Type: EventScan, Scan: &response})

	logrus.WithFields(logrus.Fields{
		"request_id":    result.RequestID,
		"score":         result.Score,
		"verdict":       result.Verdict,
		"visual":        result.Visual.Verdict,
		"processing_ms": elapsed.Milliseconds(),
	}).Info("scan completed")

	c.JSON(http.StatusOK, response)
}

// audit persists the scan. Failures are logged and counted but never change the response.
func (s *Server) audit(result engine.Result, req AnalyzeRequest, processingMs int64) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveScan(ScanFromResult(result, req, processingMs)); err != nil {
		s.metrics.auditFailures.Inc()
		logrus.WithError(err).WithField("request_id", result.RequestID).Warn("write scan audit")
	}
}

func (s *Server) handleFeedback(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	row := &store.Feedback{
		RequestID:       strings.TrimSpace(req.RequestID),
		URL:             req.URL,
		Kind:            req.Kind,
		ReportedVerdict: strings.ToLower(strings.TrimSpace(req.ReportedVerdict)),
		Comment:         strings.TrimSpace(req.Comment),
	}
	if row.URL == "" && row.RequestID != "" {
		if scan, err := s.db.GetScan(row.RequestID); err == nil {
			row.URL = scan.URL
			if row.ReportedVerdict == "" {
				row.ReportedVerdict = scan.Verdict
			}
		}
	}
	if err := s.db.SaveFeedback(row); err != nil {
		if errors.Is(err, store.ErrInvalidFeedback) {
			s.renderError(c, http.StatusBadRequest, err)
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	dto := FeedbackFromModel(*row)
	s.notifier.Broadcast(ScanEvent{Type: EventFeedback, Feedback: &dto})
	logrus.WithFields(logrus.Fields{
		"request_id": row.RequestID,
		"kind":       row.Kind,
	}).Info("feedback recorded")
	c.JSON(http.StatusCreated, dto)
}
