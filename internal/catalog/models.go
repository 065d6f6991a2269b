package catalog

import "time"

// Project owns case sets and cases. Name is unique.
type Project struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Host      string    `json:"host,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Project) TableName() string { return "project" }

// CaseSet is an ordered, named group of cases within a project.
type CaseSet struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	ProjectID int64     `gorm:"index;not null" json:"project_id"`
	Num       int       `gorm:"not null;default:0" json:"num"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (CaseSet) TableName() string { return "case_set" }

// Case is a single API test case.
type Case struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	ProjectID int64     `gorm:"index;not null" json:"project_id"`
	CaseSetID int64     `gorm:"index;not null" json:"case_set_id"`
	Num       int       `gorm:"not null;default:0" json:"num"`
	Name      string    `json:"name"`
	Desc      string    `json:"desc,omitempty"`
	Times     int       `gorm:"not null;default:1" json:"times"`
	CreatedAt time.Time `json:"created_at"`
}

func (Case) TableName() string { return "case" }
