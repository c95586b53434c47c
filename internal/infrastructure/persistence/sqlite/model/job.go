package model

import "time"

type AnalysisJob struct {
	JobID         string    `gorm:"column:job_id;primaryKey"`
	AnalysisID    string    `gorm:"column:analysis_id;not null;index"`
	PayloadJSON   string    `gorm:"column:payload_json;type:text;not null"`
	State         string    `gorm:"column:state;type:text;not null;default:queued;index"`
	Attempts      int       `gorm:"column:attempts;not null;default:0"`
	MaxAttempts   int       `gorm:"column:max_attempts;not null"`
	NextAttemptAt time.Time `gorm:"column:next_attempt_at;not null;index"`
	LastError     string    `gorm:"column:last_error;type:text;not null;default:''"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}
