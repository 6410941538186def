package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// LinearModel is a TF-IDF vectorizer followed by a logistic regression, exported from a trained
// scikit-learn pipeline as JSON.
type LinearModel struct {
	vocabulary  map[string]int
	idf         []float64
	coef        []float64
	intercept   float64
	ngramMin    int
	ngramMax    int
	sublinearTF bool
	lowercase   bool
	stopWords   map[string]struct{}
}

type linearModelFile struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	Coef        []float64      `json:"coef"`
	Intercept   float64        `json:"intercept"`
	NgramRange  []int          `json:"ngram_range"`
	SublinearTF bool           `json:"sublinear_tf"`
	Lowercase   *bool          `json:"lowercase"`
	StopWords   []string       `json:"stop_words"`
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// LoadLinearModel reads an exported model. An empty path returns ErrDisabled.
func LoadLinearModel(path string) (*LinearModel, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrDisabled
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read content model: %w", err)
	}
	var file linearModelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal content model: %w", err)
	}
	return newLinearModel(file)
}

func newLinearModel(file linearModelFile) (*LinearModel, error) {
	if len(file.Vocabulary) == 0 {
		return nil, errors.New("content model vocabulary empty")
	}
	if len(file.IDF) != len(file.Coef) {
		return nil, fmt.Errorf("content model idf/coef length mismatch: %d vs %d", len(file.IDF), len(file.Coef))
	}
	for term, idx := range file.Vocabulary {
		if idx < 0 || idx >= len(file.Coef) {
			return nil, fmt.Errorf("content model term %q index %d out of range", term, idx)
		}
	}
	m := &LinearModel{
		vocabulary:  file.Vocabulary,
		idf:         file.IDF,
		coef:        file.Coef,
		intercept:   file.Intercept,
		ngramMin:    1,
		ngramMax:    1,
		sublinearTF: file.SublinearTF,
		lowercase:   file.Lowercase == nil || *file.Lowercase,
		stopWords:   make(map[string]struct{}, len(file.StopWords)),
	}
	if len(file.NgramRange) == 2 && file.NgramRange[0] >= 1 && file.NgramRange[1] >= file.NgramRange[0] {
		m.ngramMin, m.ngramMax = file.NgramRange[0], file.NgramRange[1]
	}
	for _, w := range file.StopWords {
		m.stopWords[strings.ToLower(w)] = struct{}{}
	}
	return m, nil
}

// Enabled reports whether a model is loaded.
func (m *LinearModel) Enabled() bool {
	return m != nil && len(m.vocabulary) > 0
}

// Probability returns the positive-class probability for text.
func (m *LinearModel) Probability(ctx context.Context, text string) (float64, error) {
	if !m.Enabled() {
		return 0, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	counts := m.termCounts(text)
	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	weights := make([]float64, len(indices))
	var norm float64
	for i, idx := range indices {
		tf := float64(counts[idx])
		if m.sublinearTF {
			tf = 1 + math.Log(tf)
		}
		weights[i] = tf * m.idf[idx]
		norm += weights[i] * weights[i]
	}
	z := m.intercept
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i, idx := range indices {
			z += m.coef[idx] * weights[i] / norm
		}
	}
	return 1 / (1 + math.Exp(-z)), nil
}

func (m *LinearModel) termCounts(text string) map[int]int {
	if m.lowercase {
		text = strings.ToLower(text)
	}
	var tokens []string
	for _, tok := range tokenPattern.FindAllString(text, -1) {
		if _, stop := m.stopWords[tok]; !stop {
			tokens = append(tokens, tok)
		}
	}
	counts := make(map[int]int)
	for n := m.ngramMin; n <= m.ngramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			if idx, ok := m.vocabulary[strings.Join(tokens[i:i+n], " ")]; ok {
				counts[idx]++
			}
		}
	}
	return counts
}
