package schema

import (
	"time"
)

type Unit struct {
	Id string `gorm:"type:text;primaryKey"`

	Name        string `gorm:"type:text;unique;not null"`
	DisplayName string `gorm:"type:text;not null"`
	Description *string
}

type ValueDefinition struct {
	Id string `gorm:"type:text;primaryKey"`

	TemplateId string `gorm:"type:text;not null;index"`
	Position   int    `gorm:"not null;default:0"`

	Name        string `gorm:"type:text;not null"`
	DisplayName string `gorm:"type:text;not null"`
	Description *string

	UnitId string `gorm:"type:text;not null"`
	Unit   *Unit  `gorm:"constraint:OnDelete:RESTRICT"`

	MinValue *float64
	MaxValue *float64
}

type Template struct {
	Id string `gorm:"type:text;primaryKey"`

	Name        string `gorm:"type:text;not null"`
	Description *string

	ValueDefinitions []ValueDefinition `gorm:"foreignKey:TemplateId;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time  `gorm:"not null;autoCreateTime:false"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false"`

	IsActive bool    `gorm:"not null"`
	OwnerId  *string `gorm:"type:text"`
}

func (Template) TableName() string {
	return "measurement_templates"
}

type Measurement struct {
	Id string `gorm:"type:text;primaryKey"`

	TemplateId string    `gorm:"type:text;not null;index"`
	Template   *Template `gorm:"constraint:OnDelete:RESTRICT"`

	Values []MeasurementValue `gorm:"foreignKey:MeasurementId;constraint:OnDelete:CASCADE"`

	MeasuredAt time.Time `gorm:"not null;index"`
	RecordedAt time.Time `gorm:"not null"`
	Notes      *string
	UserId     string `gorm:"type:text;not null"`
}

// MeasurementValue keeps the definition name alongside the reference so that
// the link can be restored after the owning template replaces its definitions.
type MeasurementValue struct {
	Id string `gorm:"type:text;primaryKey"`

	MeasurementId string `gorm:"type:text;not null;index"`
	Position      int    `gorm:"not null;default:0"`

	DefinitionId   *string          `gorm:"type:text"`
	Definition     *ValueDefinition `gorm:"foreignKey:DefinitionId;constraint:OnDelete:SET NULL"`
	DefinitionName string           `gorm:"type:text;not null"`

	Value float64 `gorm:"not null"`
}
