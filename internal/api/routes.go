package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"phishguard/backend/internal/engine"
	"phishguard/backend/internal/store"
)

var errAuditDisabled = errors.New("audit store disabled")

// Config defines server dependencies.
type Config struct {
	Engine         *engine.Engine
	DBPath         string
	SilentDB       bool
	DisableAudit   bool
	AllowedOrigins []string
	// MaxBodyBytes caps request bodies; zero derives a cap from the screenshot byte ceiling.
	MaxBodyBytes int64
	StatsLimit   int
}

// Server wires HTTP handlers with the scan engine and the audit store.
type Server struct {
	engine         *engine.Engine
	db             *store.Database
	allowedOrigins []string
	notifier       *ScanNotifier
	metrics        *scanMetrics
	maxBodyBytes   int64
	statsLimit     int
}

// NewServer constructs the API server. The audit store is opened unless disabled.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("scan engine required")
	}

	var db *store.Database
	if cfg.DisableAudit {
		logrus.Info("scan audit disabled via configuration")
	} else {
		if cfg.DBPath == "" {
			return nil, errors.New("db path required")
		}
		opened, err := store.Open(cfg.DBPath, cfg.SilentDB)
		if err != nil {
			return nil, err
		}
		db = opened
		logrus.WithField("path", cfg.DBPath).Info("scan audit store opened")
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = int64(cfg.Engine.Policy().Visual.MaxImageBytes)*2 + 1<<20
	}
	statsLimit := cfg.StatsLimit
	if statsLimit <= 0 {
		statsLimit = 20
	}

	return &Server{
		engine:         cfg.Engine,
		db:             db,
		allowedOrigins: cfg.AllowedOrigins,
		notifier:       NewScanNotifier(),
		metrics:        newScanMetrics(),
		maxBodyBytes:   maxBody,
		statsLimit:     statsLimit,
	}, nil
}

// Close releases the audit store.
func (s *Server) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Notifier exposes the scan event fan-out.
func (s *Server) Notifier() *ScanNotifier {
	return s.notifier
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
		corsCfg.AllowCredentials = true
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)
	r.GET("/metrics", gin.WrapH(s.metrics.handler()))

	// Paths used by older extension builds.
	r.GET("/health", s.handleHealth)
	r.POST("/analyze", s.handleAnalyze)

	api := r.Group("/api")
	{
		api.POST("/analyze", s.handleAnalyze)
		api.POST("/feedback", s.handleFeedback)
		api.GET("/feedback", s.handleListFeedback)
		api.GET("/scans", s.handleListScans)
		api.GET("/scans/:requestID", s.handleGetScan)
		api.GET("/stats", s.handleStats)
		api.GET("/export.csv", s.handleExportCSV)
		api.GET("/export.json", s.handleExportJSON)
		api.GET("/stream", s.handleStream)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	caps := s.engine.Capabilities()
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"ml_loaded":       caps.MLLoaded,
		"detector_loaded": caps.DetectorLoaded,
		"brands":          caps.Brands,
		"audit_enabled":   s.db != nil,
	})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"policy":        s.engine.Policy(),
		"capabilities":  s.engine.Capabilities(),
		"audit_enabled": s.db != nil,
		"subscribers":   s.notifier.Subscribers(),
	})
}

func (s *Server) handleListScans(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	offset, limit := pageParams(c, 100)
	minScore, _ := strconv.Atoi(c.Query("minScore"))

	rows, total, err := s.db.ListScans(store.ScanQuery{
		Query:    strings.TrimSpace(c.Query("q")),
		Verdict:  strings.TrimSpace(c.Query("verdict")),
		Brand:    strings.TrimSpace(c.Query("brand")),
		MinScore: minScore,
		Sort:     strings.TrimSpace(c.Query("sort")),
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]ScanDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.JSON(http.StatusOK, ScansResponse{Items: dtos, Total: total})
}

func (s *Server) handleGetScan(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	requestID := strings.TrimSpace(c.Param("requestID"))
	scan, err := s.db.GetScan(requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("scan %s not found", requestID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, FromModel(*scan))
}

func (s *Server) handleListFeedback(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	offset, limit := pageParams(c, 50)
	rows, total, err := s.db.ListFeedback(offset, limit)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]FeedbackDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FeedbackFromModel(row))
	}
	c.JSON(http.StatusOK, FeedbackResponse{Items: dtos, Total: total})
}

func (s *Server) handleStats(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	total, err := s.db.CountScans()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	verdicts, err := s.db.VerdictCounts()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	brands, err := s.db.TopBrands(s.statsLimit, 1)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if brands == nil {
		brands = []store.BrandCount{}
	}
	c.JSON(http.StatusOK, StatsResponse{Total: total, Verdicts: verdicts, Brands: brands})
}

func (s *Server) handleExportCSV(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	rows, _, err := s.db.ListScans(store.ScanQuery{Verdict: c.Query("verdict"), Limit: -1})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=phishguard-scans.csv")
	c.Header("Content-Type", "text/csv")

	writer := csv.NewWriter(c.Writer)
	headers := []string{"request_id", "url", "host", "score", "verdict", "sensitivity", "url_score", "content_score", "visual_score", "visual_verdict", "visual_method", "detected_brand", "reasons", "processing_ms", "created_at"}
	if err := writer.Write(headers); err != nil {
		return
	}
	for _, row := range rows {
		dto := FromModel(row)
		line := []string{
			dto.RequestID,
			dto.URL,
			dto.Host,
			strconv.Itoa(dto.Score),
			dto.Verdict,
			dto.Sensitivity,
			strconv.Itoa(dto.URLScore),
			strconv.Itoa(dto.ContentScore),
			strconv.Itoa(dto.VisualScore),
			dto.VisualVerdict,
			dto.VisualMethod,
			dto.DetectedBrand,
			strings.Join(dto.Reasons, "|"),
			strconv.FormatInt(dto.ProcessingMs, 10),
			dto.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(line); err != nil {
			return
		}
	}
	writer.Flush()
}

func (s *Server) handleExportJSON(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	rows, _, err := s.db.ListScans(store.ScanQuery{Verdict: c.Query("verdict"), Limit: -1})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]ScanDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.Header("Content-Disposition", "attachment; filename=phishguard-scans.json")
	c.JSON(http.StatusOK, dtos)
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.db == nil {
		s.renderError(c, http.StatusServiceUnavailable, errAuditDisabled)
		return false
	}
	return true
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func pageParams(c *gin.Context, defaultSize int) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	return page * pageSize, pageSize
}
