package model

type Branch struct {
	BranchID  string `gorm:"column:branch_id;primaryKey"`
	ProjectID string `gorm:"column:project_id;not null;index;uniqueIndex:uq_branch_project_name"`
	Name      string `gorm:"column:name;type:text;not null;uniqueIndex:uq_branch_project_name"`
}

func (Branch) TableName() string {
	return "branches"
}
