package model

import "time"

type Analysis struct {
	AnalysisID            string     `gorm:"column:analysis_id;primaryKey"`
	ProjectID             string     `gorm:"column:project_id;not null;index"`
	BranchID              *string    `gorm:"column:branch_id;index"`
	PullRequestID         *string    `gorm:"column:pull_request_id;index"`
	CommitSHA             string     `gorm:"column:commit_sha;type:text;not null"`
	Status                string     `gorm:"column:status;type:text;not null;default:PENDING;index"`
	BaselineAnalysisID    *string    `gorm:"column:baseline_analysis_id"`
	StartedAt             *time.Time `gorm:"column:started_at"`
	FinishedAt            *time.Time `gorm:"column:finished_at"`
	DebtRatio             float64    `gorm:"column:debt_ratio;not null;default:0"`
	RemediationCost       float64    `gorm:"column:remediation_cost;not null;default:0"`
	MaintainabilityRating string     `gorm:"column:maintainability_rating;type:text;not null;default:''"`
	CreatedAt             time.Time  `gorm:"column:created_at;not null"`
}

func (Analysis) TableName() string {
	return "analyses"
}
