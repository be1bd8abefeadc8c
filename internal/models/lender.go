package models

import (
	"encoding/json"
	"time"
)

type LenderContact struct {
	Representative *string `json:"representative,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
}

type LenderBusinessModel struct {
	IsBroker               *bool `json:"is_broker,omitempty"`
	SupportsStartups       *bool `json:"supports_startups,omitempty"`
	DecisionTurnaroundDays *int  `json:"decision_turnaround_days,omitempty"`
}

type Lender struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Contact       *LenderContact       `json:"contact,omitempty"`
	BusinessModel *LenderBusinessModel `json:"business_model,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Criterion is a single lender requirement. Value holds whatever JSON type
// the guideline expressed it in (number, string, boolean, array).
type Criterion struct {
	ID          string      `json:"id"`
	LenderID    string      `json:"lender_id"`
	Key         string      `json:"criteria_key"`
	Value       interface{} `json:"criteria_value"`
	Type        string      `json:"criteria_type"`
	DisplayName string      `json:"display_name"`
	Description *string     `json:"description,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Required    bool        `json:"is_required"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// LenderWithCriteria is a lender and its criteria ordered by category.
type LenderWithCriteria struct {
	Lender
	Criteria []Criterion `json:"criteria"`
}

// LenderUpdate carries a partial lender update. Nil fields are left as stored.
type LenderUpdate struct {
	Name          *string              `json:"name,omitempty"`
	Contact       *LenderContact       `json:"contact,omitempty"`
	BusinessModel *LenderBusinessModel `json:"business_model,omitempty"`
}

// CriterionUpdate carries a partial criterion update. Value is kept raw so an
// explicit JSON value can be told apart from an absent one.
type CriterionUpdate struct {
	Key         *string         `json:"criteria_key,omitempty"`
	Value       json.RawMessage `json:"criteria_value,omitempty"`
	Type        *string         `json:"criteria_type,omitempty"`
	DisplayName *string         `json:"display_name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Required    *bool           `json:"is_required,omitempty"`
}
