package models

import "time"

// Farmer is a registered farmer.
type Farmer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Village   string    `json:"village"`
	Phone     string    `json:"phone"`
	LandSize  float64   `json:"landSize"`
	CreatedAt time.Time `json:"createdAt"`
	// SyncState is device-local and never sent to the remote service.
	SyncState SyncState `json:"-"`
}

// LoanStatus is the status of a legacy loan request.
type LoanStatus string

const (
	LoanPending  LoanStatus = "PENDING"
	LoanApproved LoanStatus = "APPROVED"
	LoanRejected LoanStatus = "REJECTED"
)

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	return s == LoanPending || s == LoanApproved || s == LoanRejected
}

// LoanEvent is one entry in a loan timeline.
type LoanEvent struct {
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
}

// Loan is a simple loan request tied to a farmer.
type Loan struct {
	ID          string      `json:"id"`
	FarmerID    string      `json:"farmerId"`
	AgentID     string      `json:"agentId"`
	ProductType string      `json:"productType"`
	Amount      float64     `json:"amount"`
	Status      LoanStatus  `json:"status"`
	Timeline    []LoanEvent `json:"timeline"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	SyncState   SyncState   `json:"-"`
}

// LoanStatusUpdate is the body of a lender action on a loan.
type LoanStatusUpdate struct {
	Status LoanStatus `json:"status"`
	Note   string     `json:"note,omitempty"`
	UserID string     `json:"userId"`
}

// Scheme is a government scheme an applicant may be eligible for.
type Scheme struct {
	Name    string `json:"name"`
	Benefit string `json:"benefit"`
}
