package model

type AnalysisArtifact struct {
	ArtifactID  string `gorm:"column:artifact_id;primaryKey"`
	AnalysisID  string `gorm:"column:analysis_id;not null;uniqueIndex:uq_artifact_key"`
	AnalyzerKey string `gorm:"column:analyzer_key;type:text;not null;uniqueIndex:uq_artifact_key"`
	Kind        string `gorm:"column:kind;type:text;not null;uniqueIndex:uq_artifact_key"`
	Bucket      string `gorm:"column:bucket;type:text;not null"`
	ObjectKey   string `gorm:"column:object_key;type:text;not null"`
	ContentType string `gorm:"column:content_type;type:text;not null"`
}

func (AnalysisArtifact) TableName() string {
	return "analysis_artifacts"
}
