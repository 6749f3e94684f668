package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/MrWong99/audiojournal/internal/entity"
)

// Compile-time assertion that NER implements Extractor.
var _ Extractor = (*NER)(nil)

// classifier is the part of a hugot token-classification pipeline NER uses.
type classifier interface {
	RunPipeline(inputs []string) (*pipelines.TokenClassificationOutput, error)
}

// NEROption is a functional option for configuring an [NER] extractor.
type NEROption func(*NER)

// WithMinScore drops predictions whose confidence is below score.
// Default: 0 (keep everything the model labels).
func WithMinScore(score float64) NEROption {
	return func(n *NER) {
		n.minScore = score
	}
}

// WithDenylist suppresses extra tokens on top of [DefaultDenylist].
func WithDenylist(words ...string) NEROption {
	return func(n *NER) {
		n.deny = newDenylist(words)
	}
}

// NER extracts entities with a token-classification model (for example
// KnightsAnalytics/distilbert-NER) run through hugot's pure Go backend.
// Labels are mapped to kinds: PER to person, LOC to location, ORG to
// organization and MISC (or anything unknown) to misc.
//
// Close must be called to release the model session.
type NER struct {
	mu       sync.Mutex // serialises inference
	session  *hugot.Session
	pipeline classifier
	deny     denylist
	minScore float64
}

// NewNER loads the ONNX model found in modelPath, a directory holding the
// model and its tokenizer.
func NewNER(modelPath string, opts ...NEROption) (*NER, error) {
	if modelPath == "" {
		return nil, errors.New("extract: NER model path must not be empty")
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("extract: create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "journal-ner",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	p, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("extract: create NER pipeline: %w (cleanup: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("extract: create NER pipeline: %w", err)
	}

	n := newNER(p, opts...)
	n.session = session
	return n, nil
}

// newNER builds an extractor around an already loaded classifier.
func newNER(p classifier, opts ...NEROption) *NER {
	n := &NER{pipeline: p, deny: newDenylist(nil)}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Extract implements [Extractor].
func (n *NER) Extract(ctx context.Context, text string) ([]entity.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	n.mu.Lock()
	result, err := n.pipeline.RunPipeline([]string{text})
	n.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("extract: run NER: %w", err)
	}
	if result == nil || len(result.Entities) == 0 {
		return nil, nil
	}

	col := newCollector(n.deny)
	for _, e := range result.Entities[0] {
		if float64(e.Score) < n.minScore {
			continue
		}
		name := strings.Join(strings.Fields(e.Word), " ")
		if strings.HasPrefix(name, "##") {
			continue
		}
		col.add(name, kindForLabel(e.Entity))
	}
	return col.out, nil
}

// Close releases the hugot session. It is safe to call more than once.
func (n *NER) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session == nil {
		return nil
	}
	err := n.session.Destroy()
	n.session = nil
	if err != nil {
		return fmt.Errorf("extract: destroy hugot session: %w", err)
	}
	return nil
}

// kindForLabel strips BIO prefixes (B-, I-) and maps the CoNLL label to a
// kind.
func kindForLabel(label string) entity.Kind {
	label = strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")
	switch strings.ToUpper(label) {
	case "PER", "PERSON":
		return entity.KindPerson
	case "LOC", "LOCATION", "GPE":
		return entity.KindLocation
	case "ORG", "ORGANIZATION":
		return entity.KindOrganization
	default:
		return entity.KindMisc
	}
}
