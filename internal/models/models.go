package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// JobStatus is a job's lifecycle state.
type JobStatus string

const (
	JobStatusEstimate JobStatus = "estimate"
	JobStatusSold     JobStatus = "sold"
	JobStatusInvoiced JobStatus = "invoiced"
	JobStatusPaid     JobStatus = "paid"
)

// JobStatuses returns the closed set of lifecycle states in order.
func JobStatuses() []JobStatus {
	return []JobStatus{JobStatusEstimate, JobStatusSold, JobStatusInvoiced, JobStatusPaid}
}

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusEstimate, JobStatusSold, JobStatusInvoiced, JobStatusPaid:
		return true
	}
	return false
}

// Customer 客户档案
type Customer struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Address   string         `json:"address"`
	Notes     string         `gorm:"type:text" json:"notes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Jobs []Job `gorm:"foreignKey:CustomerID" json:"jobs,omitempty"`
}

// CostsData carries the money figures on a job.
type CostsData struct {
	FinalQuote float64 `json:"final_quote"`
}

func (c CostsData) Value() (driver.Value, error) { return jsonColumnValue(c) }

func (c *CostsData) Scan(value interface{}) error { return jsonColumnScan(value, c) }

// CalcData carries the board-feet calculation figures on a job. OC/CC sets
// are open-cell and closed-cell foam set counts.
type CalcData struct {
	TotalBoardFeetWithWaste float64 `json:"total_board_feet_with_waste"`
	OCSets                  float64 `json:"oc_sets"`
	CCSets                  float64 `json:"cc_sets"`
}

func (c CalcData) Value() (driver.Value, error) { return jsonColumnValue(c) }

func (c *CalcData) Scan(value interface{}) error { return jsonColumnScan(value, c) }

// Job 工单模型：从报价到回款的全生命周期
type Job struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	EstimateNumber   string         `gorm:"unique;not null" json:"estimate_number"`
	CustomerID       uint           `gorm:"index" json:"customer_id"`
	Status           JobStatus      `gorm:"default:'estimate';index" json:"status"` // estimate, sold, invoiced, paid
	CostsData        CostsData      `gorm:"type:text" json:"costs_data"`
	CalcData         CalcData       `gorm:"type:text" json:"calc_data"`
	EstimatePDF      string         `gorm:"type:text" json:"estimate_pdf,omitempty"`
	MaterialOrderPDF string         `gorm:"type:text" json:"material_order_pdf,omitempty"`
	InvoicePDF       string         `gorm:"type:text" json:"invoice_pdf,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
}

// CompanySettings is the single row of company contact details. The email
// is the default recipient for emailed reports.
type CompanySettings struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CompanyName string    `json:"company_name"`
	OwnerName   string    `json:"owner_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasEmail reports whether a usable company email is configured.
func (s *CompanySettings) HasEmail() bool {
	return strings.TrimSpace(s.Email) != ""
}

func jsonColumnValue(v interface{}) (driver.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func jsonColumnScan(src, dst interface{}) error {
	switch data := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, dst)
	case string:
		if data == "" {
			return nil
		}
		return json.Unmarshal([]byte(data), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
