package api

import (
	"time"

	"phishguard/backend/internal/engine"
	"phishguard/backend/internal/match"
	"phishguard/backend/internal/scoring"
	"phishguard/backend/internal/store"
)

// AnalyzeRequest is the payload sent by the scanning client.
type AnalyzeRequest struct {
	URL                 string `json:"url"`
	Text                string `json:"text"`
	Screenshot          string `json:"screenshot"`
	Sensitivity         string `json:"sensitivity"`
	RequestID           string `json:"request_id"`
	DeceptiveLinksCount int    `json:"deceptive_links_count"`
}

// AnalyzeResponse is the fused verdict returned to the client.
type AnalyzeResponse struct {
	RequestID     string   `json:"request_id"`
	URL           string   `json:"url"`
	Score         int      `json:"score"`
	Verdict       string   `json:"verdict"`
	Reasons       []string `json:"reasons"`
	URLScore      int      `json:"url_score"`
	ContentScore  int      `json:"content_score"`
	VisualScore   int      `json:"visual_score"`
	VisualVerdict string   `json:"visual_verdict"`
	DetectedBrand string   `json:"detected_brand,omitempty"`
}

// FeedbackRequest reports a wrong verdict.
type FeedbackRequest struct {
	RequestID       string `json:"request_id"`
	URL             string `json:"url"`
	Kind            string `json:"kind"`
	ReportedVerdict string `json:"reported_verdict"`
	Comment         string `json:"comment"`
}

// ScanDTO is the API representation of a persisted scan.
type ScanDTO struct {
	ID            uint      `json:"id"`
	RequestID     string    `json:"request_id"`
	URL           string    `json:"url"`
	Host          string    `json:"host"`
	Score         int       `json:"score"`
	Verdict       string    `json:"verdict"`
	Sensitivity   string    `json:"sensitivity"`
	Reasons       []string  `json:"reasons"`
	URLScore      int       `json:"url_score"`
	ContentScore  int       `json:"content_score"`
	ContentML     *int      `json:"content_ml,omitempty"`
	VisualScore   int       `json:"visual_score"`
	VisualVerdict string    `json:"visual_verdict"`
	VisualMethod  string    `json:"visual_method,omitempty"`
	DetectedBrand string    `json:"detected_brand,omitempty"`
	ProcessingMs  int64     `json:"processing_ms"`
	HasScreenshot bool      `json:"has_screenshot"`
	TextLength    int       `json:"text_length"`
	CreatedAt     time.Time `json:"created_at"`
}

// ScansResponse holds a page of scans and the filtered total.
type ScansResponse struct {
	Items []ScanDTO `json:"items"`
	Total int64     `json:"total"`
}

// FeedbackDTO is the API representation of a feedback row.
type FeedbackDTO struct {
	ID              uint      `json:"id"`
	RequestID       string    `json:"request_id"`
	URL             string    `json:"url"`
	Kind            string    `json:"kind"`
	ReportedVerdict string    `json:"reported_verdict,omitempty"`
	Comment         string    `json:"comment,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// FeedbackResponse holds a page of feedback rows.
type FeedbackResponse struct {
	Items []FeedbackDTO `json:"items"`
	Total int64         `json:"total"`
}

// StatsResponse summarizes stored scans.
type StatsResponse struct {
	Total    int64              `json:"total"`
	Verdicts map[string]int64   `json:"verdicts"`
	Brands   []store.BrandCount `json:"brands"`
}

// ResponseFromResult flattens an engine result for the client.
func ResponseFromResult(r engine.Result) AnalyzeResponse {
	reasons := r.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return AnalyzeResponse{
		RequestID:     r.RequestID,
		URL:           r.URL,
		Score:         r.Score,
		Verdict:       string(r.Verdict),
		Reasons:       reasons,
		URLScore:      r.URLPartial.Score,
		ContentScore:  r.Content.Score,
		VisualScore:   r.Visual.Score,
		VisualVerdict: string(r.Visual.Verdict),
		DetectedBrand: r.Visual.Brand,
	}
}

// ScanFromResult builds the audit row for a completed analysis.
func ScanFromResult(r engine.Result, req AnalyzeRequest, processingMs int64) *store.Scan {
	host := ""
	if profile, err := match.ParseURL(r.URL); err == nil {
		host = profile.Host
	}
	scan := &store.Scan{
		RequestID:     r.RequestID,
		URL:           r.URL,
		Host:          host,
		Score:         r.Score,
		Verdict:       string(r.Verdict),
		Sensitivity:   string(r.Sensitivity),
		URLScore:      r.URLPartial.Score,
		ContentScore:  r.Content.Score,
		ContentML:     r.Content.ML,
		VisualScore:   r.Visual.Score,
		VisualVerdict: string(r.Visual.Verdict),
		VisualMethod:  r.Visual.Method,
		DetectedBrand: r.Visual.Brand,
		ProcessingMs:  processingMs,
		HasScreenshot: req.Screenshot != "",
		TextLength:    len([]rune(scoring.NormalizeText(req.Text))),
	}
	scan.SetReasons(r.Reasons)
	return scan
}

// FromModel converts a persisted scan into its DTO.
func FromModel(s store.Scan) ScanDTO {
	reasons := s.Reasons()
	if reasons == nil {
		reasons = []string{}
	}
	return ScanDTO{
		ID:            s.ID,
		RequestID:     s.RequestID,
		URL:           s.URL,
		Host:          s.Host,
		Score:         s.Score,
		Verdict:       s.Verdict,
		Sensitivity:   s.Sensitivity,
		Reasons:       reasons,
		URLScore:      s.URLScore,
		ContentScore:  s.ContentScore,
		ContentML:     s.ContentML,
		VisualScore:   s.VisualScore,
		VisualVerdict: s.VisualVerdict,
		VisualMethod:  s.VisualMethod,
		DetectedBrand: s.DetectedBrand,
		ProcessingMs:  s.ProcessingMs,
		HasScreenshot: s.HasScreenshot,
		TextLength:    s.TextLength,
		CreatedAt:     s.CreatedAt,
	}
}

// FeedbackFromModel converts a persisted feedback row into its DTO.
func FeedbackFromModel(f store.Feedback) FeedbackDTO {
	return FeedbackDTO{
		ID:              f.ID,
		RequestID:       f.RequestID,
		URL:             f.URL,
		Kind:            f.Kind,
		ReportedVerdict: f.ReportedVerdict,
		Comment:         f.Comment,
		CreatedAt:       f.CreatedAt,
	}
}
