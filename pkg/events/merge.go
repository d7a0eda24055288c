package events

import (
	"fmt"

	"github.com/imdario/mergo"
)

// MergeDefaults overlays metadata on top of defaults. Non-empty metadata
// fields win; the organizer is merged field by field. Slices are copied so
// callers can mutate the result freely.
func MergeDefaults(defaults NormalizedEventInput, metadata *NormalizedEventInput) (NormalizedEventInput, error) {
	merged := defaults.Clone()
	if metadata == nil {
		return merged, nil
	}
	if err := mergo.Merge(&merged, metadata.Clone(), mergo.WithOverride); err != nil {
		return defaults.Clone(), fmt.Errorf("merging event metadata: %w", err)
	}
	return merged, nil
}

// Clone returns a copy that shares no slices with e.
func (e NormalizedEventInput) Clone() NormalizedEventInput {
	out := e
	if e.Tags != nil {
		out.Tags = append([]string(nil), e.Tags...)
	}
	return out
}

// Overlay fills every empty field of e from base and returns the result.
// Scrapers use it to apply caller defaults beneath what they extracted.
func (e NormalizedEventInput) Overlay(base NormalizedEventInput) NormalizedEventInput {
	out := e.Clone()
	_ = mergo.Merge(&out, base.Clone())
	return out
}
