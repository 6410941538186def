package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"phishguard/backend/internal/api"
	"phishguard/backend/internal/engine"
)

func main() {
	_ = godotenv.Load()

	if level, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL"))); err == nil {
		logrus.SetLevel(level)
	}

	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	assets := engine.Assets{
		PolicyPath:    strings.TrimSpace(os.Getenv("SCORING_POLICY_PATH")),
		BrandsDir:     filepath.Join(baseDir, "brands"),
		WhitelistPath: strings.TrimSpace(os.Getenv("BRANDS_WHITELIST_PATH")),
		ModelPath:     strings.TrimSpace(os.Getenv("CONTENT_MODEL_PATH")),
		ClassifierURL: strings.TrimSpace(os.Getenv("CLASSIFIER_URL")),
		DetectorURL:   strings.TrimSpace(os.Getenv("DETECTOR_URL")),
	}
	if dir := strings.TrimSpace(os.Getenv("BRANDS_DIR")); dir != "" {
		assets.BrandsDir = dir
	}
	if timeout := os.Getenv("INFERENCE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			assets.InferenceTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_SCREENSHOT_BYTES")); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			assets.MaxScreenshotBytes = val
		}
	}

	if v := strings.TrimSpace(os.Getenv("DETECTOR_CONFIDENCE")); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			assets.DetectorConfidence = val
		}
	}

	engineCfg, err := engine.LoadConfig(assets)
	if err != nil {
		logrus.Fatalf("load engine assets: %v", err)
	}
	eng, err := engine.New(engineCfg)
	if err != nil {
		logrus.Fatalf("create scan engine: %v", err)
	}

	cfg := api.Config{
		Engine:       eng,
		DBPath:       filepath.Join(dataDir, "phishguard.db"),
		SilentDB:     true,
		DisableAudit: strings.EqualFold(strings.TrimSpace(os.Getenv("DISABLE_AUDIT")), "true"),
	}
	if override := strings.TrimSpace(os.Getenv("SCAN_DB_PATH")); override != "" {
		cfg.DBPath = override
	}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}
	defer func() {
		if cerr := server.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close audit store")
		}
	}()

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	logrus.Infof("starting phishguard backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
