package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"phishguard/backend/internal/api"
	"phishguard/backend/internal/engine"
	"phishguard/backend/internal/scoring"
	"phishguard/backend/internal/store"
	"phishguard/backend/internal/util"
)

func main() {
	var (
		rawURL        = flag.String("url", "", "URL of the page to scan")
		text          = flag.String("text", "", "Visible page text")
		textFile      = flag.String("text-file", "", "Read page text from a file (- for stdin)")
		screenshot    = flag.String("screenshot", "", "Path to a screenshot image (png, jpeg, gif, webp)")
		sensitivity   = flag.String("sensitivity", string(scoring.SensitivityBalanced), "strict, balanced or permissive")
		requestID     = flag.String("request-id", "", "Request ID (generated when empty)")
		deceptive     = flag.Int("deceptive-links", 0, "Number of deceptive links found on the page")
		brandsDir     = flag.String("brands", "brands", "Directory of brand reference logos")
		whitelistPath = flag.String("whitelist", "", "Brand whitelist JSON merged over the built-in list")
		policyPath    = flag.String("policy", "", "Scoring policy JSON overlay")
		modelPath     = flag.String("model", "", "Exported linear content model JSON")
		classifierURL = flag.String("classifier-url", "", "Remote text classifier base URL")
		detectorURL   = flag.String("detector-url", "", "Remote logo detector base URL")
		timeout       = flag.Duration("timeout", 30*time.Second, "Overall scan timeout")
		dbPath        = flag.String("db", "", "Optional SQLite database to record the scan in")
		stats         = flag.Bool("stats", false, "Print brand and verdict aggregates from -db and exit")
		statsLimit    = flag.Int("stats-limit", 20, "Maximum number of brands to print with -stats")
		verbose       = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	logrus.SetOutput(os.Stderr)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	var db *store.Database
	if strings.TrimSpace(*dbPath) != "" {
		opened, err := store.Open(filepath.Clean(*dbPath), true)
		if err != nil {
			logrus.Fatalf("open database: %v", err)
		}
		db = opened
		defer func() {
			if cerr := db.Close(); cerr != nil {
				logrus.WithError(cerr).Warn("close database")
			}
		}()
	}

	if *stats {
		if db == nil {
			logrus.Fatal("-stats requires -db")
		}
		if err := printStats(db, *statsLimit); err != nil {
			logrus.Fatalf("stats: %v", err)
		}
		return
	}

	if strings.TrimSpace(*rawURL) == "" {
		flag.Usage()
		os.Exit(2)
	}

	pageText := *text
	if *textFile != "" {
		loaded, err := readText(*textFile)
		if err != nil {
			logrus.Fatalf("read text: %v", err)
		}
		pageText = loaded
	}

	encoded := ""
	if *screenshot != "" {
		data, err := os.ReadFile(filepath.Clean(*screenshot))
		if err != nil {
			logrus.Fatalf("read screenshot: %v", err)
		}
		encoded = base64.StdEncoding.EncodeToString(data)
	}

	cfg, err := engine.LoadConfig(engine.Assets{
		PolicyPath:    *policyPath,
		BrandsDir:     *brandsDir,
		WhitelistPath: *whitelistPath,
		ModelPath:     *modelPath,
		ClassifierURL: *classifierURL,
		DetectorURL:   *detectorURL,
	})
	if err != nil {
		logrus.Fatalf("load engine assets: %v", err)
	}
	cfg.Sequential = true
	eng, err := engine.New(cfg)
	if err != nil {
		logrus.Fatalf("create scan engine: %v", err)
	}

	id := strings.TrimSpace(*requestID)
	if id == "" {
		id = uuid.NewString()
	}
	req := api.AnalyzeRequest{
		URL:                 *rawURL,
		Text:                pageText,
		Screenshot:          encoded,
		Sensitivity:         *sensitivity,
		RequestID:           id,
		DeceptiveLinksCount: *deceptive,
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	timer := util.StartTimer()
	result := eng.Analyze(ctx, engine.Request{
		RequestID:           req.RequestID,
		URL:                 req.URL,
		Text:                req.Text,
		Screenshot:          req.Screenshot,
		Sensitivity:         scoring.Sensitivity(req.Sensitivity),
		DeceptiveLinksCount: req.DeceptiveLinksCount,
	})

	if db != nil {
		if err := db.SaveScan(api.ScanFromResult(result, req, timer.ElapsedMs())); err != nil {
			logrus.WithError(err).Warn("record scan")
		}
	}

	if err := writeJSON(os.Stdout, result); err != nil {
		logrus.Fatalf("write result: %v", err)
	}
}

func readText(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printStats(db *store.Database, limit int) error {
	if db == nil {
		return errors.New("database is nil")
	}
	total, err := db.CountScans()
	if err != nil {
		return err
	}
	verdicts, err := db.VerdictCounts()
	if err != nil {
		return err
	}
	brands, err := db.TopBrands(limit, 1)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d scans recorded\n", total)
	return writeJSON(os.Stdout, api.StatsResponse{Total: total, Verdicts: verdicts, Brands: brands})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
