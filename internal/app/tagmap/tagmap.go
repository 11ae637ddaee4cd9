// Package tagmap translates platform tag vocabularies into internal
// knowledge-point names.
package tagmap

import (
	"strings"

	"github.com/gosimple/slug"
)

var internalNames = func() map[string]bool {
	names := map[string]bool{}
	for _, m := range platformTags {
		for _, targets := range m {
			for _, t := range targets {
				names[t] = true
			}
		}
	}
	return names
}()

// MapTags returns the internal tags for rawTags, deduplicated in first-seen
// order. Unknown tags are dropped.
func MapTags(platform string, rawTags []string) []string {
	mapped, _ := Split(platform, rawTags)
	return mapped
}

// Split is MapTags that also reports the tags it could not place, so callers
// can log them and the tables can grow.
//
// Lookup order: the platform table, then the tag as an internal name, then
// its slug ("Segment Tree" finds segment_tree).
func Split(platform string, rawTags []string) (mapped, unmapped []string) {
	table := platformTags[platform]
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			mapped = append(mapped, name)
		}
	}
	for _, raw := range rawTags {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		if targets, ok := table[tag]; ok {
			for _, t := range targets {
				add(t)
			}
			continue
		}
		if internalNames[tag] {
			add(tag)
			continue
		}
		if s := strings.ReplaceAll(slug.Make(tag), "-", "_"); internalNames[s] {
			add(s)
			continue
		}
		unmapped = append(unmapped, tag)
	}
	return mapped, unmapped
}

// Known reports whether name is an internal tag.
func Known(name string) bool { return internalNames[name] }
