package pr

import (
	"sort"

	"github.com/gobwas/glob"

	"github.com/drover-sh/drover/internal/errors"
)

// Reviewers assigns reviewers and labels to a change set by matching
// changed file paths against configured glob rules.
type Reviewers struct {
	defaults []string
	byPath   []pathRule
	labels   []labelRule
}

type pathRule struct {
	pattern   string
	matcher   glob.Glob
	reviewers []string
}

type labelRule struct {
	pattern string
	matcher glob.Glob
	labels  []string
}

// NewReviewers compiles the rule sets. byPath maps glob patterns to
// reviewer lists; labels maps glob patterns to label lists.
func NewReviewers(defaults []string, byPath map[string][]string, labels map[string][]string) (*Reviewers, error) {
	r := &Reviewers{defaults: defaults}

	// Deterministic rule order regardless of map iteration.
	for _, pattern := range sortedKeys(byPath) {
		matcher, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.NewValidationError("invalid reviewer path pattern").
				WithField("pr.reviewers.by_path").
				WithValue(pattern)
		}
		r.byPath = append(r.byPath, pathRule{
			pattern:   pattern,
			matcher:   matcher,
			reviewers: byPath[pattern],
		})
	}

	for _, pattern := range sortedKeys(labels) {
		matcher, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.NewValidationError("invalid label path pattern").
				WithField("pr.labels").
				WithValue(pattern)
		}
		r.labels = append(r.labels, labelRule{
			pattern: pattern,
			matcher: matcher,
			labels:  labels[pattern],
		})
	}

	return r, nil
}

// ForFiles returns the reviewers for a change set: the defaults plus every
// by-path rule whose pattern matches at least one changed file. The result
// is deduplicated and sorted.
func (r *Reviewers) ForFiles(files []string) []string {
	seen := make(map[string]bool)
	for _, reviewer := range r.defaults {
		seen[reviewer] = true
	}
	for _, rule := range r.byPath {
		for _, file := range files {
			if rule.matcher.Match(file) {
				for _, reviewer := range rule.reviewers {
					seen[reviewer] = true
				}
				break
			}
		}
	}
	return sortedSet(seen)
}

// LabelsForFiles returns the labels whose patterns match any changed file,
// deduplicated and sorted.
func (r *Reviewers) LabelsForFiles(files []string) []string {
	seen := make(map[string]bool)
	for _, rule := range r.labels {
		for _, file := range files {
			if rule.matcher.Match(file) {
				for _, label := range rule.labels {
					seen[label] = true
				}
				break
			}
		}
	}
	return sortedSet(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
