package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UUID primary keys get their gen_random_uuid() default from the SQL
// migrations, so it stays off the gorm tags and out of AutoMigrate DDL.
// The hooks assign ids on drivers without that function (sqlite test
// databases).

func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (p *EsimProfile) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *PromoCode) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
