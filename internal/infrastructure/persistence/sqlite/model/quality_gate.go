package model

type QualityGate struct {
	GateID    string `gorm:"column:gate_id;primaryKey"`
	ProjectID string `gorm:"column:project_id;not null;uniqueIndex"`
	Name      string `gorm:"column:name;type:text;not null"`
}

func (QualityGate) TableName() string {
	return "quality_gates"
}

type QualityGateCondition struct {
	ConditionID string  `gorm:"column:condition_id;primaryKey"`
	GateID      string  `gorm:"column:gate_id;not null;index"`
	MetricKey   string  `gorm:"column:metric_key;type:text;not null"`
	Operator    string  `gorm:"column:operator;type:text;not null"`
	Threshold   float64 `gorm:"column:threshold;not null"`
	Scope       string  `gorm:"column:scope;type:text;not null;default:ALL"`
}

func (QualityGateCondition) TableName() string {
	return "quality_gate_conditions"
}
