package pipeline

import (
	"context"
	"fmt"

	"qubeless/internal/domain/analysis"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

var artifactFileName = map[analysis.ArtifactKind]string{
	analysis.ArtifactReport:    "report.json",
	analysis.ArtifactMeasures:  "measures.json",
	analysis.ArtifactLog:       "analyzer.log",
	analysis.ArtifactSourceZip: "source.zip",
}

var artifactContentType = map[analysis.ArtifactKind]string{
	analysis.ArtifactReport:    "application/json",
	analysis.ArtifactMeasures:  "application/json",
	analysis.ArtifactLog:       "text/plain",
	analysis.ArtifactSourceZip: "application/zip",
}

// writeArtifact uploads one blob under the analysis/analyzer namespace
// and records the pointer. Keys never collide across jobs; re-running
// the same analyzer overwrites its own artifact.
func (s *Service) writeArtifact(ctx context.Context, analysisID, analyzerKey string, kind analysis.ArtifactKind, data []byte) error {
	key := fmt.Sprintf("analyses/%s/%s/%s", analysisID, analyzerKey, artifactFileName[kind])

	ref, err := s.storage.PutObject(ctx, key, data, artifactContentType[kind])
	if err != nil {
		return errs.Wrapf(err, "upload %s artifact", kind)
	}

	err = s.store.UpsertArtifact(ctx, ports.ArtifactUpsert{
		AnalysisID:  analysisID,
		AnalyzerKey: analyzerKey,
		Kind:        kind,
		Bucket:      ref.Bucket,
		ObjectKey:   ref.Key,
		ContentType: artifactContentType[kind],
	})
	if err != nil {
		return errs.Wrapf(err, "record %s artifact", kind)
	}
	return nil
}
