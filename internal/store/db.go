package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrInvalidFeedback is returned when a feedback row has no URL or an unknown kind.
var ErrInvalidFeedback = errors.New("invalid feedback")

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Scan{}, &Feedback{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveScan inserts the scan, replacing an earlier row with the same request ID.
func (d *Database) SaveScan(s *Scan) error {
	if s == nil {
		return errors.New("scan is nil")
	}
	s.RequestID = strings.TrimSpace(s.RequestID)
	if s.RequestID == "" {
		return errors.New("scan request id is empty")
	}
	s.Host = normalizeHost(s.Host)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "request_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"url",
			"host",
			"score",
			"verdict",
			"sensitivity",
			"url_score",
			"content_score",
			"content_ml",
			"visual_score",
			"visual_verdict",
			"visual_method",
			"detected_brand",
			"reasons_json",
			"processing_ms",
			"has_screenshot",
			"text_length",
		}),
	}).Create(s).Error
}

// GetScan fetches a scan by request ID.
func (d *Database) GetScan(requestID string) (*Scan, error) {
	var scan Scan
	if err := d.gorm.Where("request_id = ?", strings.TrimSpace(requestID)).First(&scan).Error; err != nil {
		return nil, err
	}
	return &scan, nil
}

// CountScans returns the number of stored scans.
func (d *Database) CountScans() (int64, error) {
	var count int64
	if err := d.gorm.Model(&Scan{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ScanQuery encapsulates filters and pagination for listing scans.
type ScanQuery struct {
	Query    string
	Verdict  string
	Brand    string
	MinScore int
	Sort     string
	Offset   int
	Limit    int
}

// ListScans returns paginated scans applying optional filters, plus the filtered total.
func (d *Database) ListScans(opts ScanQuery) ([]Scan, int64, error) {
	var total int64
	base := d.gorm.Model(&Scan{})
	if q := strings.TrimSpace(opts.Query); q != "" {
		like := fmt.Sprintf("%%%s%%", q)
		base = base.Where("url LIKE ? OR host LIKE ? OR detected_brand LIKE ?", like, like, like)
	}
	if verdict := strings.TrimSpace(opts.Verdict); verdict != "" {
		base = base.Where("verdict = ?", strings.ToLower(verdict))
	}
	if brand := strings.TrimSpace(opts.Brand); brand != "" {
		base = base.Where("detected_brand = ?", strings.ToLower(brand))
	}
	if opts.MinScore > 0 {
		base = base.Where("score >= ?", opts.MinScore)
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	queryBuilder := base.Order(orderForSort(opts.Sort)).Offset(opts.Offset)
	if opts.Limit > 0 {
		queryBuilder = queryBuilder.Limit(opts.Limit)
	}

	var rows []Scan
	if err := queryBuilder.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func orderForSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "score_desc":
		return "scans.score DESC, scans.id DESC"
	case "score_asc":
		return "scans.score ASC, scans.id DESC"
	case "host_asc":
		return "scans.host ASC, scans.id DESC"
	case "host_desc":
		return "scans.host DESC, scans.id DESC"
	case "created_asc":
		return "scans.created_at ASC, scans.id ASC"
	case "created_desc":
		return "scans.created_at DESC, scans.id DESC"
	default:
		return "scans.id DESC"
	}
}

// SaveFeedback records a user report about a scan verdict.
func (d *Database) SaveFeedback(f *Feedback) error {
	if f == nil {
		return errors.New("feedback is nil")
	}
	f.URL = strings.TrimSpace(f.URL)
	f.Kind = strings.ToLower(strings.TrimSpace(f.Kind))
	if f.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidFeedback)
	}
	if f.Kind != FeedbackFalsePositive && f.Kind != FeedbackFalseNegative {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFeedback, f.Kind)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(f).Error
}

// ListFeedback returns feedback rows newest first.
func (d *Database) ListFeedback(offset, limit int) ([]Feedback, int64, error) {
	var total int64
	if err := d.gorm.Model(&Feedback{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := d.gorm.Model(&Feedback{}).Order("id DESC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	var rows []Feedback
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func normalizeHost(value string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(value)), ".")
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"UPDATE scans SET host = LOWER(host) WHERE host IS NOT NULL AND host <> LOWER(host)",
		"CREATE INDEX IF NOT EXISTS idx_scans_verdict_score ON scans(verdict, score)",
		"CREATE INDEX IF NOT EXISTS idx_scans_brand_verdict ON scans(detected_brand, verdict)",
		"CREATE INDEX IF NOT EXISTS idx_feedback_kind_created ON feedback(kind, created_at)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
