package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Feedback kinds reported by users.
const (
	FeedbackFalsePositive = "false_positive"
	FeedbackFalseNegative = "false_negative"
)

// Scan is the audit row written after every analysis.
type Scan struct {
	ID            uint   `gorm:"primaryKey"`
	RequestID     string `gorm:"size:64;uniqueIndex"`
	URL           string `gorm:"type:text"`
	Host          string `gorm:"size:255;index"`
	Score         int    `gorm:"index"`
	Verdict       string `gorm:"size:16;index"`
	Sensitivity   string `gorm:"size:16"`
	URLScore      int
	ContentScore  int
	ContentML     *int
	VisualScore   int
	VisualVerdict string `gorm:"size:16"`
	VisualMethod  string `gorm:"size:16"`
	DetectedBrand string `gorm:"size:64;index"`
	ReasonsJSON   string `gorm:"type:text"`
	ProcessingMs  int64
	HasScreenshot bool
	TextLength    int
	CreatedAt     time.Time `gorm:"autoCreateTime;index"`
}

// SetReasons stores the reason list as JSON.
func (s *Scan) SetReasons(reasons []string) {
	if reasons == nil {
		s.ReasonsJSON = "[]"
		return
	}
	payload, _ := json.Marshal(reasons)
	s.ReasonsJSON = string(payload)
}

// Reasons returns the decoded reason list.
func (s *Scan) Reasons() []string {
	if strings.TrimSpace(s.ReasonsJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.ReasonsJSON), &out); err != nil {
		return nil
	}
	return out
}

// Feedback is a user report that a verdict was wrong.
type Feedback struct {
	ID              uint      `gorm:"primaryKey"`
	RequestID       string    `gorm:"size:64;index"`
	URL             string    `gorm:"type:text"`
	Kind            string    `gorm:"size:32;index"`
	ReportedVerdict string    `gorm:"size:16"`
	Comment         string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// TableName pins the feedback table name.
func (Feedback) TableName() string {
	return "feedback"
}

// BrandCount is an aggregate of scans per detected brand.
type BrandCount struct {
	Brand    string `json:"brand"`
	Total    int    `json:"total"`
	Phishing int    `json:"phishing"`
}
