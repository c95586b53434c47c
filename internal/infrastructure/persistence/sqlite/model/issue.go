package model

type Issue struct {
	IssueID            string  `gorm:"column:issue_id;primaryKey"`
	AnalysisID         string  `gorm:"column:analysis_id;not null;index;uniqueIndex:uq_issue_analysis_fingerprint"`
	AnalyzerKey        string  `gorm:"column:analyzer_key;type:text;not null"`
	RuleKey            string  `gorm:"column:rule_key;type:text;not null"`
	Severity           string  `gorm:"column:severity;type:text;not null"`
	Type               string  `gorm:"column:type;type:text;not null"`
	FilePath           string  `gorm:"column:file_path;type:text;not null"`
	Line               *int    `gorm:"column:line"`
	Message            string  `gorm:"column:message;type:text;not null"`
	Fingerprint        string  `gorm:"column:fingerprint;type:text;not null;uniqueIndex:uq_issue_analysis_fingerprint"`
	IsNew              bool    `gorm:"column:is_new;not null;default:0"`
	BaselineAnalysisID *string `gorm:"column:baseline_analysis_id"`
	Status             string  `gorm:"column:status;type:text;not null;default:OPEN"`
}

func (Issue) TableName() string {
	return "issues"
}
