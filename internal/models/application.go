package models

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle status of a loan application.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusSubmitted     Status = "SUBMITTED"
	StatusSynced        Status = "SYNCED"
	StatusResubmitted   Status = "RESUBMITTED"
	StatusApproved      Status = "APPROVED"
	StatusRejected      Status = "REJECTED"
	StatusInfoRequested Status = "INFO_REQUESTED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusSynced, StatusResubmitted,
		StatusApproved, StatusRejected, StatusInfoRequested:
		return true
	}
	return false
}

// Role identifies the party acting on an application.
type Role string

const (
	RoleLender Role = "LENDER"
	RoleAgent  Role = "AGENT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleLender || r == RoleAgent
}

// SenderName is the display name recorded on messages written by r.
func (r Role) SenderName() string {
	if r == RoleLender {
		return "Lender Admin"
	}
	return "Field Agent"
}

// Message is a single entry of the append-only conversation attached to an application.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Application is a farmer loan application.
type Application struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agentId"`
	SubmissionID string    `json:"submissionId"`
	Timestamp    time.Time `json:"timestamp"`
	Status       Status    `json:"status"`
	Messages     []Message `json:"messages"`

	Personal    Personal    `json:"personal"`
	Land        Land        `json:"land"`
	Crops       []Crop      `json:"crops,omitempty"`
	Financials  Financials  `json:"financials"`
	LoanRequest LoanRequest `json:"loanRequest"`
	Collateral  Collateral  `json:"collateral"`
	Consent     Consent     `json:"consent"`
}

// Clone returns a deep copy of a.
func (a Application) Clone() Application {
	b, err := json.Marshal(a)
	if err != nil {
		return a
	}
	var out Application
	if err := json.Unmarshal(b, &out); err != nil {
		return a
	}
	return out
}

// Personal holds the applicant's identity. AadhaarOrID and Phone are stored obfuscated.
type Personal struct {
	FarmerName          string  `json:"farmerName"`
	FatherOrHusbandName string  `json:"fatherOrHusbandName,omitempty"`
	DOB                 string  `json:"dob,omitempty"`
	Gender              string  `json:"gender,omitempty"`
	AadhaarOrID         string  `json:"aadhaarOrID"`
	Phone               string  `json:"phone"`
	AltPhone            string  `json:"altPhone,omitempty"`
	Address             Address `json:"address"`
}

type Address struct {
	Village  string `json:"village"`
	Tehsil   string `json:"tehsil,omitempty"`
	District string `json:"district,omitempty"`
	Pin      string `json:"pin,omitempty"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Land struct {
	Size           float64   `json:"size"`
	Unit           string    `json:"unit,omitempty"`
	OwnershipType  string    `json:"ownershipType,omitempty"`
	GeoCoords      *GeoPoint `json:"geoCoords,omitempty"`
	LandRecordFile string    `json:"landRecordFile,omitempty"`
}

type Crop struct {
	Name      string `json:"name"`
	Season    string `json:"season"`
	LastYield string `json:"lastYield,omitempty"`
}

type PreviousLoan struct {
	Lender      string  `json:"lender"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	Outstanding float64 `json:"outstanding,omitempty"`
}

type Financials struct {
	Last2SeasonsIncomeEstimate float64        `json:"last2SeasonsIncomeEstimate"`
	OtherIncomeSources         string         `json:"otherIncomeSources,omitempty"`
	PreviousLoans              []PreviousLoan `json:"previousLoans,omitempty"`
}

type LoanRequest struct {
	Amount          float64 `json:"amount"`
	Purpose         string  `json:"purpose"`
	Tenure          int     `json:"tenure"`
	RepaymentSource string  `json:"repaymentSource,omitempty"`
}

type Guarantor struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Collateral struct {
	Type        string     `json:"type,omitempty"`
	Description string     `json:"description,omitempty"`
	Guarantor   *Guarantor `json:"guarantor,omitempty"`
}

type Consent struct {
	SignedBy       string    `json:"signedBy,omitempty"`
	SignatureImage string    `json:"signatureImage,omitempty"`
	Timestamp      string    `json:"timestamp,omitempty"`
	GPSStamp       *GeoPoint `json:"gpsStamp,omitempty"`
}

// LocalApplication is an application as cached on the device, with its sync state.
type LocalApplication struct {
	Application
	SyncState SyncState `json:"syncState"`
}

// Draft is an in-progress application that has not been submitted yet.
type Draft struct {
	Application
	LastModified time.Time `json:"lastModified"`
	// Step is the wizard position, starting at 1.
	Step int `json:"step"`
}

// StatusUpdate is the body of an application status/message update.
type StatusUpdate struct {
	Status  Status `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Role    Role   `json:"role"`
}

// ApplicationStats summarises the authoritative application store.
type ApplicationStats struct {
	Total          int     `json:"total"`
	Approved       int     `json:"approved"`
	Rejected       int     `json:"rejected"`
	Pending        int     `json:"pending"`
	InfoRequested  int     `json:"infoRequested"`
	ApprovedAmount float64 `json:"approvedAmount"`
}
