package model

type PullRequest struct {
	PullRequestID  string `gorm:"column:pull_request_id;primaryKey"`
	ProjectID      string `gorm:"column:project_id;not null;index"`
	Number         int    `gorm:"column:number;not null"`
	TargetBranchID string `gorm:"column:target_branch_id;type:text;not null"`
}

func (PullRequest) TableName() string {
	return "pull_requests"
}
