package analysis

// BaselineResolution is the outcome of baseline selection for one run.
//
// Resolved=false means no baseline could be found at all (the first
// analysis of a chain); everything diffs as new. Resolved=true with an
// empty fingerprint set is the distinct "baseline exists but has no
// issues" case: membership tests still drive the diff, which also marks
// everything new, but the two cases stay apart in the type.
type BaselineResolution struct {
	Resolved     bool
	AnalysisID   string
	Fingerprints map[string]struct{}
}

func NoBaseline() BaselineResolution {
	return BaselineResolution{}
}

func ResolvedBaseline(analysisID string, fingerprints []string) BaselineResolution {
	set := make(map[string]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		set[fp] = struct{}{}
	}
	return BaselineResolution{Resolved: true, AnalysisID: analysisID, Fingerprints: set}
}

// IsNew reports whether a fingerprint was absent from the baseline.
func (b BaselineResolution) IsNew(fingerprint string) bool {
	if !b.Resolved {
		return true
	}
	_, known := b.Fingerprints[fingerprint]
	return !known
}
