package service

import (
	"context"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/notekeeper/notekeeper/internal/domain"
	"github.com/notekeeper/notekeeper/internal/livequery"
)

// tagNames adapts a tag list to fuzzy.Source.
type tagNames []domain.Tag

func (t tagNames) String(i int) string { return t[i].Name }
func (t tagNames) Len() int            { return len(t) }

// SuggestTags returns up to limit existing tags whose names fuzzily match
// input, so a "new tag" prompt can offer an existing one instead.
// Names that start with input (ignoring case) rank first. A blank input
// returns the first tags by name. limit <= 0 means no limit.
func (n *Notebook) SuggestTags(ctx context.Context, input string, limit int) ([]domain.Tag, error) {
	tags, err := livequery.Fetch(ctx, n.live, livequery.AllTags())
	if err != nil {
		return nil, err
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return truncate(tags, limit), nil
	}

	matches := fuzzy.FindFrom(input, tagNames(tags))
	prefix := strings.ToLower(input)
	sort.SliceStable(matches, func(i, j int) bool {
		pi := strings.HasPrefix(strings.ToLower(matches[i].Str), prefix)
		pj := strings.HasPrefix(strings.ToLower(matches[j].Str), prefix)
		if pi != pj {
			return pi
		}
		return matches[i].Score > matches[j].Score
	})

	out := make([]domain.Tag, 0, len(matches))
	for _, m := range matches {
		out = append(out, tags[m.Index])
	}
	return truncate(out, limit), nil
}

func truncate(tags []domain.Tag, limit int) []domain.Tag {
	if limit > 0 && len(tags) > limit {
		return tags[:limit]
	}
	return tags
}
