package model

type Project struct {
	ProjectID       string `gorm:"column:project_id;primaryKey"`
	Key             string `gorm:"column:key;type:text;not null;uniqueIndex"`
	Name            string `gorm:"column:name;type:text;not null"`
	LeakPeriodType  string `gorm:"column:leak_period_type;type:text;not null;default:LAST_ANALYSIS"`
	LeakPeriodValue string `gorm:"column:leak_period_value;type:text;not null;default:''"`
}

func (Project) TableName() string {
	return "projects"
}
