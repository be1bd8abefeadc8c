// internal/models/application.go
package models

import "time"

const (
	ApplicationStatusPending   = "pending"
	ApplicationStatusEvaluated = "evaluated"
)

// ApplicationSnapshot is the applicant's submitted facts. It is read-only once
// handed to the evaluation core.
type ApplicationSnapshot struct {
	BusinessInfo    BusinessInfo  `json:"business_info"`
	CreditInfo      CreditInfo    `json:"credit_info"`
	LoanDetails     LoanDetails   `json:"loan_details"`
	EquipmentInfo   EquipmentInfo `json:"equipment_info"`
	ContactInfo     ContactInfo   `json:"contact_info"`
	AdditionalNotes *string       `json:"additional_notes,omitempty"`
}

type BusinessInfo struct {
	BusinessName      string   `json:"business_name"`
	BusinessType      string   `json:"business_type"`
	Industry          string   `json:"industry"`
	YearsInBusiness   float64  `json:"years_in_business"`
	AnnualRevenue     *float64 `json:"annual_revenue,omitempty"`
	NumberOfEmployees *int     `json:"number_of_employees,omitempty"`
}

type CreditInfo struct {
	FICOScore               int     `json:"fico_score"`
	PaynetScore             *int    `json:"paynet_score,omitempty"`
	HasBankruptcy           bool    `json:"has_bankruptcy"`
	BankruptcyDischargeDate *string `json:"bankruptcy_discharge_date,omitempty"`
	HasJudgments            bool    `json:"has_judgments"`
	HasForeclosure          bool    `json:"has_foreclosure"`
	HasRepossession         bool    `json:"has_repossession"`
}

type LoanDetails struct {
	RequestedAmount float64 `json:"requested_amount"`
	DownPayment     float64 `json:"down_payment"`
	LoanTermMonths  int     `json:"loan_term_months"`
	LoanPurpose     string  `json:"loan_purpose"`
}

// DownPaymentPercent returns the down payment as a percentage of the
// requested amount, and false when the amount is not positive.
func (l LoanDetails) DownPaymentPercent() (float64, bool) {
	if l.RequestedAmount <= 0 {
		return 0, false
	}
	return l.DownPayment / l.RequestedAmount * 100, true
}

type EquipmentInfo struct {
	EquipmentType      string `json:"equipment_type"`
	EquipmentCategory  string `json:"equipment_category"`
	EquipmentAgeYears  *int   `json:"equipment_age_years,omitempty"`
	EquipmentCondition string `json:"equipment_condition"`
	PurchaseType       string `json:"purchase_type"`
	EquipmentMileage   *int   `json:"equipment_mileage,omitempty"`
}

type ContactInfo struct {
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	State       string `json:"state"`
}

// LoanApplication is a persisted snapshot plus its lifecycle fields.
type LoanApplication struct {
	ID string `json:"id"`
	ApplicationSnapshot
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
