package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logo is one reference image with its precomputed features.
type Logo struct {
	Name     string
	Width    int
	Height   int
	Features []Feature
}

// BrandReference is a brand key, its canonical domains and its reference logos.
type BrandReference struct {
	Brand   string
	Domains []string
	Logos   []Logo
}

// BrandSet is the read-only reference store shared by every request.
type BrandSet struct {
	refs      []BrandReference
	whitelist map[string][]string
}

// DefaultWhitelist returns the built-in canonical domains for well known brands.
func DefaultWhitelist() map[string][]string {
	return map[string][]string{
		"google":    {"google.com", "youtube.com", "gmail.com", "gstatic.com"},
		"microsoft": {"microsoft.com", "live.com", "office.com", "bing.com", "msn.com", "outlook.com"},
		"facebook":  {"facebook.com", "fb.com", "meta.com", "instagram.com"},
		"netflix":   {"netflix.com"},
		"paypal":    {"paypal.com"},
		"amazon":    {"amazon.com", "aws.amazon.com"},
		"apple":     {"apple.com", "icloud.com"},
	}
}

// LoadWhitelist reads a {"brand": ["domain", ...]} file and merges it over the defaults.
// An empty path returns the defaults.
func LoadWhitelist(path string) (map[string][]string, error) {
	whitelist := DefaultWhitelist()
	if strings.TrimSpace(path) == "" {
		return whitelist, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read brand whitelist: %w", err)
	}
	var extra map[string][]string
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("unmarshal brand whitelist: %w", err)
	}
	for brand, domains := range extra {
		key := strings.ToLower(strings.TrimSpace(brand))
		if key == "" {
			continue
		}
		whitelist[key] = cleanDomains(domains)
	}
	return whitelist, nil
}

// BrandKey derives the brand from a reference file name: the stem before the first separator.
func BrandKey(filename string) string {
	base := filepath.Base(filename)
	if idx := strings.IndexAny(base, "_-. "); idx >= 0 {
		base = base[:idx]
	}
	return strings.ToLower(strings.TrimSpace(base))
}

var referenceExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// LoadBrands reads every reference image in dir, groups them by brand key and precomputes their
// features. A missing directory yields an empty set; unreadable files are skipped.
func LoadBrands(dir string, whitelist map[string][]string, extractor *Extractor, maxPixels int) (*BrandSet, error) {
	logos := make(map[string][]Logo)
	if strings.TrimSpace(dir) == "" {
		return NewBrandSet(logos, whitelist), nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logrus.WithField("dir", dir).Warn("brand reference directory not found")
			return NewBrandSet(logos, whitelist), nil
		}
		return nil, fmt.Errorf("read brand directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !referenceExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		brand := BrandKey(entry.Name())
		if brand == "" {
			continue
		}
		img, err := LoadGray(filepath.Join(dir, entry.Name()), maxPixels)
		if err != nil {
			logrus.WithError(err).WithField("file", entry.Name()).Warn("skipping brand reference")
			continue
		}
		logos[brand] = append(logos[brand], NewLogo(entry.Name(), img, extractor))
		logrus.WithFields(logrus.Fields{"brand": brand, "file": entry.Name()}).Info("loaded brand reference")
	}
	return NewBrandSet(logos, whitelist), nil
}

// NewLogo precomputes the features of a reference image.
func NewLogo(name string, img *image.Gray, extractor *Extractor) Logo {
	return Logo{
		Name:     name,
		Width:    img.Rect.Dx(),
		Height:   img.Rect.Dy(),
		Features: extractor.Extract(img),
	}
}

// NewBrandSet assembles references from logos grouped by brand. Brands without an explicit
// whitelist entry default to {brand}.com. Whitelist-only brands remain usable by a detector.
func NewBrandSet(logos map[string][]Logo, whitelist map[string][]string) *BrandSet {
	set := &BrandSet{whitelist: make(map[string][]string)}
	for brand, domains := range whitelist {
		set.whitelist[strings.ToLower(brand)] = cleanDomains(domains)
	}
	brands := make([]string, 0, len(logos))
	for brand := range logos {
		brands = append(brands, brand)
	}
	sort.Strings(brands)
	for _, brand := range brands {
		key := strings.ToLower(brand)
		set.refs = append(set.refs, BrandReference{
			Brand:   key,
			Domains: set.Domains(key),
			Logos:   logos[brand],
		})
	}
	return set
}

// References returns the brands with reference logos, sorted by key.
func (s *BrandSet) References() []BrandReference {
	if s == nil {
		return nil
	}
	return s.refs
}

// Len is the number of brands with reference logos.
func (s *BrandSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.refs)
}

// Domains returns the canonical domains of brand.
func (s *BrandSet) Domains(brand string) []string {
	key := strings.ToLower(strings.TrimSpace(brand))
	if s != nil {
		if domains, ok := s.whitelist[key]; ok && len(domains) > 0 {
			return domains
		}
	}
	if key == "" {
		return nil
	}
	return []string{key + ".com"}
}

func cleanDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), "."); d != "" {
			out = append(out, d)
		}
	}
	return out
}
