package sentiment

import (
	_ "embed"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var lexiconYAML []byte

// Label classifies a polarity score into a sentiment bucket.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
)

// Polarity thresholds for labeling. Scores at the thresholds themselves
// are neutral.
const (
	PositiveThreshold = 0.1
	NegativeThreshold = -0.1
)

// negatorScale flips a negated term's polarity and damps its magnitude
// ("not good" reads weaker than "bad").
const negatorScale = -0.5

// modifierWindow is how many tokens ahead a negator or intensifier reaches.
const modifierWindow = 2

// Score is the result of analyzing one text.
type Score struct {
	Polarity     float64
	Subjectivity float64
	Confidence   float64
	Label        Label
}

// lexiconConfig represents the YAML structure of the embedded lexicon.
type lexiconConfig struct {
	Words        []lexiconWord        `yaml:"words"`
	Negators     []string             `yaml:"negators"`
	Intensifiers []lexiconIntensifier `yaml:"intensifiers"`
}

type lexiconWord struct {
	Word         string  `yaml:"word"`
	Polarity     float64 `yaml:"polarity"`
	Subjectivity float64 `yaml:"subjectivity"`
}

type lexiconIntensifier struct {
	Word  string  `yaml:"word"`
	Scale float64 `yaml:"scale"`
}

// term holds the scores for one lexicon word.
type term struct {
	polarity     float64
	subjectivity float64
}

var (
	urlPattern     = regexp.MustCompile(`http\S+|www\S+|https\S+`)
	mentionPattern = regexp.MustCompile(`@\w+|#\w+`)
)

// Classifier scores text against the embedded lexicon.
type Classifier struct {
	terms        map[string]term
	negators     map[string]struct{}
	intensifiers map[string]float64
}

var (
	defaultClassifier     *Classifier
	defaultClassifierOnce sync.Once
	defaultClassifierErr  error
)

// NewClassifier creates a new Classifier from the embedded YAML lexicon.
func NewClassifier() (*Classifier, error) {
	return newClassifierFromYAML(lexiconYAML)
}

// DefaultClassifier returns a singleton Classifier instance.
// It's safe to call concurrently.
func DefaultClassifier() (*Classifier, error) {
	defaultClassifierOnce.Do(func() {
		defaultClassifier, defaultClassifierErr = NewClassifier()
	})
	return defaultClassifier, defaultClassifierErr
}

// Analyze scores text with the default classifier. It returns the neutral
// zero Score if the embedded lexicon cannot be loaded.
func Analyze(text string) Score {
	c, err := DefaultClassifier()
	if err != nil {
		return Score{Label: LabelNeutral}
	}
	return c.Analyze(text)
}

// newClassifierFromYAML parses YAML and indexes the lexicon.
func newClassifierFromYAML(data []byte) (*Classifier, error) {
	var config lexiconConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	terms := make(map[string]term, len(config.Words))
	for _, w := range config.Words {
		terms[strings.ToLower(w.Word)] = term{
			polarity:     w.Polarity,
			subjectivity: w.Subjectivity,
		}
	}

	negators := make(map[string]struct{}, len(config.Negators))
	for _, n := range config.Negators {
		negators[strings.ToLower(n)] = struct{}{}
	}

	intensifiers := make(map[string]float64, len(config.Intensifiers))
	for _, m := range config.Intensifiers {
		intensifiers[strings.ToLower(m.Word)] = m.Scale
	}

	return &Classifier{
		terms:        terms,
		negators:     negators,
		intensifiers: intensifiers,
	}, nil
}

// Clean strips URLs, mentions, and hashtags from tweet text and collapses
// runs of whitespace.
func Clean(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = mentionPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Analyze scores a single text. It never fails: input that cannot be scored
// (empty, invalid UTF-8, or no lexicon matches after cleaning) yields the
// neutral zero Score. Identical input always yields an identical Score.
func (c *Classifier) Analyze(text string) Score {
	if !utf8.ValidString(text) {
		return Score{Label: LabelNeutral}
	}

	tokens := tokenize(Clean(text))
	if len(tokens) == 0 {
		return Score{Label: LabelNeutral}
	}

	var (
		polaritySum     float64
		subjectivitySum float64
		matched         int
	)
	negatorIdx := -(modifierWindow + 1)
	intensifierIdx := -(modifierWindow + 1)
	intensity := 1.0

	for i, tok := range tokens {
		if _, ok := c.negators[tok]; ok {
			negatorIdx = i
			continue
		}
		if scale, ok := c.intensifiers[tok]; ok {
			intensifierIdx = i
			intensity = scale
			continue
		}
		entry, ok := c.terms[tok]
		if !ok {
			continue
		}

		p, s := entry.polarity, entry.subjectivity
		if i-intensifierIdx <= modifierWindow {
			p *= intensity
			s *= intensity
		}
		if i-negatorIdx <= modifierWindow {
			p *= negatorScale
		}

		polaritySum += p
		subjectivitySum += s
		matched++
	}

	if matched == 0 {
		return Score{Label: LabelNeutral}
	}

	polarity := clamp(polaritySum/float64(matched), -1, 1)
	subjectivity := clamp(subjectivitySum/float64(matched), 0, 1)
	return Score{
		Polarity:     polarity,
		Subjectivity: subjectivity,
		Confidence:   Confidence(polarity),
		Label:        LabelForPolarity(polarity),
	}
}

// LabelForPolarity maps a polarity score to its sentiment label. The
// thresholds are strict: exactly ±0.1 is neutral.
func LabelForPolarity(polarity float64) Label {
	switch {
	case polarity > PositiveThreshold:
		return LabelPositive
	case polarity < NegativeThreshold:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// Confidence maps |polarity| onto [0, 1]: zero at and inside the neutral
// band, rising linearly to one at full polarity.
func Confidence(polarity float64) float64 {
	return clamp((math.Abs(polarity)-PositiveThreshold)/(1-PositiveThreshold), 0, 1)
}

// tokenize lowercases and splits cleaned text, trimming surrounding
// punctuation from each token. Interior apostrophes survive so contracted
// negators ("don't") keep their lexicon form.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
