package model

type Rule struct {
	RuleID      string `gorm:"column:rule_id;primaryKey"`
	AnalyzerKey string `gorm:"column:analyzer_key;type:text;not null;uniqueIndex:uq_rule_analyzer_key"`
	RuleKey     string `gorm:"column:rule_key;type:text;not null;uniqueIndex:uq_rule_analyzer_key"`
	Name        string `gorm:"column:name;type:text;not null"`
	Description string `gorm:"column:description;type:text;not null;default:''"`
	Severity    string `gorm:"column:severity;type:text;not null;default:''"`
	Type        string `gorm:"column:type;type:text;not null;default:''"`
}

func (Rule) TableName() string {
	return "rules"
}

// RuleProfileRule marks per-project rule activation; disabled rows drive
// the pre-insert issue filter.
type RuleProfileRule struct {
	ProfileRuleID string `gorm:"column:profile_rule_id;primaryKey"`
	ProjectID     string `gorm:"column:project_id;not null;index;uniqueIndex:uq_profile_project_rule"`
	RuleKey       string `gorm:"column:rule_key;type:text;not null;uniqueIndex:uq_profile_project_rule"`
	Enabled       bool   `gorm:"column:enabled;not null;default:1"`
}

func (RuleProfileRule) TableName() string {
	return "rule_profile_rules"
}
