package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "scans.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newScan(requestID, host, verdict, brand string, score int) *Scan {
	s := &Scan{
		RequestID:     requestID,
		URL:           "https://" + host + "/login",
		Host:          host,
		Score:         score,
		Verdict:       verdict,
		Sensitivity:   "balanced",
		DetectedBrand: brand,
	}
	s.SetReasons([]string{"reason for " + requestID})
	return s
}

func TestSaveScanUpsertsByRequestID(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveScan(newScan("req-1", "Example.COM.", "safe", "", 5)))
	updated := newScan("req-1", "example.com", "suspicious", "", 55)
	updated.SetReasons([]string{"updated"})
	require.NoError(t, db.SaveScan(updated))

	count, err := db.CountScans()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := db.GetScan("req-1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", got.Host)
	assert.Equal(t, 55, got.Score)
	assert.Equal(t, "suspicious", got.Verdict)
	assert.Equal(t, []string{"updated"}, got.Reasons())
}

func TestSaveScanRejectsMissingRequestID(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.SaveScan(newScan("  ", "example.com", "safe", "", 0)))
	assert.Error(t, db.SaveScan(nil))
}

func TestGetScanMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetScan("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestListScansFiltersAndSorts(t *testing.T) {
	db := openTestDB(t)
	rows := []*Scan{
		newScan("a", "paypal-login.example.net", "phishing", "paypal", 91),
		newScan("b", "www.paypal.com", "safe", "paypal", 3),
		newScan("c", "news.example.org", "safe", "", 0),
		newScan("d", "secure-update.example.net", "suspicious", "", 62),
	}
	for _, r := range rows {
		require.NoError(t, db.SaveScan(r))
	}

	tests := []struct {
		name    string
		query   ScanQuery
		wantIDs []string
		total   int64
	}{
		{name: "default newest first", query: ScanQuery{}, wantIDs: []string{"d", "c", "b", "a"}, total: 4},
		{name: "verdict filter", query: ScanQuery{Verdict: "SAFE"}, wantIDs: []string{"c", "b"}, total: 2},
		{name: "min score by score desc", query: ScanQuery{MinScore: 50, Sort: "score_desc"}, wantIDs: []string{"a", "d"}, total: 2},
		{name: "text query", query: ScanQuery{Query: "example.net", Sort: "score_asc"}, wantIDs: []string{"d", "a"}, total: 2},
		{name: "brand filter", query: ScanQuery{Brand: "PayPal", Sort: "host_asc"}, wantIDs: []string{"a", "b"}, total: 2},
		{name: "paged", query: ScanQuery{Sort: "score_desc", Offset: 1, Limit: 2}, wantIDs: []string{"d", "b"}, total: 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, total, err := db.ListScans(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.total, total)
			ids := make([]string, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.RequestID)
			}
			assert.Equal(t, tc.wantIDs, ids)
		})
	}
}

func TestSaveFeedbackValidates(t *testing.T) {
	db := openTestDB(t)

	err := db.SaveFeedback(&Feedback{URL: "https://example.com", Kind: "wrong"})
	assert.True(t, errors.Is(err, ErrInvalidFeedback))
	err = db.SaveFeedback(&Feedback{URL: " ", Kind: FeedbackFalsePositive})
	assert.True(t, errors.Is(err, ErrInvalidFeedback))

	require.NoError(t, db.SaveFeedback(&Feedback{RequestID: "a", URL: "https://example.com", Kind: " False_Positive "}))
	require.NoError(t, db.SaveFeedback(&Feedback{RequestID: "b", URL: "https://evil.example", Kind: FeedbackFalseNegative, ReportedVerdict: "safe"}))

	rows, total, err := db.ListFeedback(0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].RequestID)
	assert.Equal(t, FeedbackFalsePositive, rows[1].Kind)
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	for _, s := range []*Scan{
		newScan("1", "a.example", "phishing", "paypal", 90),
		newScan("2", "b.example", "phishing", "paypal", 88),
		newScan("3", "www.paypal.com", "safe", "paypal", 2),
		newScan("4", "c.example", "phishing", "netflix", 84),
		newScan("5", "d.example", "safe", "", 0),
	} {
		require.NoError(t, db.SaveScan(s))
	}

	brands, err := db.TopBrands(10, 1)
	require.NoError(t, err)
	assert.Equal(t, []BrandCount{
		{Brand: "paypal", Total: 3, Phishing: 2},
		{Brand: "netflix", Total: 1, Phishing: 1},
	}, brands)

	brands, err = db.TopBrands(10, 2)
	require.NoError(t, err)
	require.Len(t, brands, 1)

	counts, err := db.VerdictCounts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"phishing": 3, "safe": 2}, counts)
}

func TestReasonsRoundTripEmpty(t *testing.T) {
	var s Scan
	s.SetReasons(nil)
	assert.Equal(t, "[]", s.ReasonsJSON)
	assert.Empty(t, s.Reasons())
}
