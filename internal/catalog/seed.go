package catalog

import (
	"context"

	"gorm.io/gorm"
)

// SeedProject describes a project tree to insert in one transaction.
type SeedProject struct {
	Name string
	Host string
	Sets []SeedSet
}

type SeedSet struct {
	Num   int
	Name  string
	Cases []SeedCase
}

type SeedCase struct {
	Num  int
	Name string
}

// Seed inserts p with its sets and cases and returns the stored project.
func Seed(ctx context.Context, db *gorm.DB, p SeedProject) (Project, error) {
	proj := Project{Name: p.Name, Host: p.Host}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&proj).Error; err != nil {
			return err
		}
		for _, s := range p.Sets {
			set := CaseSet{ProjectID: proj.ID, Num: s.Num, Name: s.Name}
			if err := tx.Create(&set).Error; err != nil {
				return err
			}
			for _, c := range s.Cases {
				row := Case{ProjectID: proj.ID, CaseSetID: set.ID, Num: c.Num, Name: c.Name, Times: 1}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	return proj, err
}
