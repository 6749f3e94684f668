package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/audiojournal/internal/entity"
	"github.com/MrWong99/audiojournal/internal/phonetic"
)

// newEntities returns the candidates that have no registry record yet.
// Lookup failures other than not-found are treated as existing.
func (p *Pipeline) newEntities(ctx context.Context, cands []entity.Candidate) []entity.Candidate {
	if p.lookalikeThreshold > 1 {
		return nil
	}
	var fresh []entity.Candidate
	for _, c := range cands {
		if _, err := p.c.Registry.Get(ctx, c.Slug()); errors.Is(err, entity.ErrNotFound) {
			fresh = append(fresh, c)
		}
	}
	return fresh
}

// lookalike asks the registry for names similar to c and keeps those that
// also match as a whole name. The registry's own ranking also accepts a
// single shared word, which is too loose for reporting duplicates.
func (p *Pipeline) lookalike(ctx context.Context, c entity.Candidate, log *slog.Logger) (Lookalike, bool) {
	matches, err := p.c.Registry.Similar(ctx, c.Name)
	if err != nil {
		log.Debug("lookalike search failed", slog.String("entity", c.Name), slog.Any("err", err))
		return Lookalike{}, false
	}

	strict := phonetic.New(
		phonetic.WithTokenPairs(false),
		phonetic.WithPhoneticThreshold(p.lookalikeThreshold),
		phonetic.WithFuzzyThreshold(p.lookalikeThreshold),
	)
	var keep []entity.Match
	for _, m := range matches {
		if m.Slug == c.Slug() {
			continue
		}
		if _, score, ok := strict.Match(c.Name, []string{m.Name}); ok {
			m.Score = score
			keep = append(keep, m)
		}
	}
	if len(keep) == 0 {
		return Lookalike{}, false
	}

	log.Info("new entity sounds like an existing one",
		slog.String("entity", c.Name),
		slog.String("existing", keep[0].Name),
		slog.Float64("score", keep[0].Score),
	)
	return Lookalike{Name: c.Name, Slug: c.Slug(), Existing: keep}, true
}
