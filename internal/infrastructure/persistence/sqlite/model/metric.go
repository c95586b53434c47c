package model

type AnalysisMetric struct {
	MetricID   string  `gorm:"column:metric_id;primaryKey"`
	AnalysisID string  `gorm:"column:analysis_id;not null;index"`
	ProjectID  string  `gorm:"column:project_id;not null;index"`
	BranchID   *string `gorm:"column:branch_id"`
	MetricKey  string  `gorm:"column:metric_key;type:text;not null"`
	Value      float64 `gorm:"column:value;not null"`
}

func (AnalysisMetric) TableName() string {
	return "analysis_metrics"
}
