package store

import (
	"errors"
	"fmt"
)

// TopBrands aggregates scans by detected brand, most frequent first. Scans without a brand are
// ignored.
func (d *Database) TopBrands(limit int, minCount int) ([]BrandCount, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	if minCount <= 0 {
		minCount = 1
	}

	var results []BrandCount
	query := d.gorm.Table("scans").
		Select("detected_brand AS brand, COUNT(*) AS total, SUM(CASE WHEN verdict = 'phishing' THEN 1 ELSE 0 END) AS phishing").
		Where("detected_brand <> ''").
		Group("detected_brand").
		Having("COUNT(*) >= ?", minCount).
		Order("total DESC, brand ASC").
		Limit(limit)

	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("top brands: %w", err)
	}
	return results, nil
}

// VerdictCounts returns the number of scans per verdict.
func (d *Database) VerdictCounts() (map[string]int64, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	var rows []struct {
		Verdict string
		Total   int64
	}
	if err := d.gorm.Table("scans").
		Select("verdict, COUNT(*) AS total").
		Group("verdict").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("verdict counts: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Verdict] = row.Total
	}
	return counts, nil
}
