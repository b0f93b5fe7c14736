package models

import (
	"time"
)

type Role string

const (
	RoleCandidate Role = "candidate"
	RoleEmployer  Role = "employer"
	RoleAdmin     Role = "admin"
)

type CandidateStatus string

const (
	CandidatePending   CandidateStatus = "pending"
	CandidateActive    CandidateStatus = "active"
	CandidateHidden    CandidateStatus = "hidden"
	CandidateSuspended CandidateStatus = "suspended"
)

func (s CandidateStatus) Valid() bool {
	switch s {
	case CandidatePending, CandidateActive, CandidateHidden, CandidateSuspended:
		return true
	}
	return false
}

type Availability string

const (
	AvailableImmediately Availability = "immediate"
	AvailableTwoWeeks    Availability = "two_weeks"
	AvailableOneMonth    Availability = "one_month"
	AvailableNegotiable  Availability = "negotiable"
)

func (a Availability) Valid() bool {
	switch a {
	case AvailableImmediately, AvailableTwoWeeks, AvailableOneMonth, AvailableNegotiable:
		return true
	}
	return false
}

type Candidate struct {
	ID                string          `json:"id" dynamodbav:"ID"`
	Name              string          `json:"name"`
	NameAr            string          `json:"nameAr,omitempty" dynamodbav:",omitempty"`
	Email             string          `json:"email,omitempty"`
	Phone             string          `json:"phone,omitempty"`
	PhoneVerified     bool            `json:"phoneVerified"`
	PasswordHash      string          `json:"-"`
	Nationality       string          `json:"nationality,omitempty" dynamodbav:",omitempty"`
	Gender            string          `json:"gender,omitempty" dynamodbav:",omitempty"`
	BirthDate         string          `json:"birthDate,omitempty" dynamodbav:",omitempty"`
	City              string          `json:"city,omitempty" dynamodbav:",omitempty"`
	PrimarySkillID    string          `json:"primarySkillId,omitempty" dynamodbav:",omitempty"`
	SkillIDs          []string        `json:"skillIds,omitempty" dynamodbav:",omitempty"`
	ExperienceYears   int             `json:"experienceYears"`
	Languages         []string        `json:"languages,omitempty" dynamodbav:",omitempty"`
	Bio               string          `json:"bio,omitempty" dynamodbav:",omitempty"`
	BioAr             string          `json:"bioAr,omitempty" dynamodbav:",omitempty"`
	Availability      Availability    `json:"availability,omitempty" dynamodbav:",omitempty"`
	ExpectedSalary    int             `json:"expectedSalary,omitempty" dynamodbav:",omitempty"`
	CVKey             string          `json:"-" dynamodbav:",omitempty"`
	PhotoKey          string          `json:"photoKey,omitempty" dynamodbav:",omitempty"`
	BillingClass      BillingClass    `json:"billingClass,omitempty" dynamodbav:",omitempty"`
	Status            CandidateStatus `json:"status"`
	PreferredLanguage string          `json:"preferredLanguage,omitempty" dynamodbav:",omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type EmployerStatus string

const (
	EmployerActive    EmployerStatus = "active"
	EmployerSuspended EmployerStatus = "suspended"
)

type Employer struct {
	ID                string         `json:"id" dynamodbav:"ID"`
	CompanyName       string         `json:"companyName"`
	ContactName       string         `json:"contactName"`
	Email             string         `json:"email"`
	Phone             string         `json:"phone"`
	PhoneVerified     bool           `json:"phoneVerified"`
	PasswordHash      string         `json:"-"`
	Industry          string         `json:"industry,omitempty" dynamodbav:",omitempty"`
	City              string         `json:"city,omitempty" dynamodbav:",omitempty"`
	CreditBalance     int            `json:"creditBalance"`
	PlanID            string         `json:"planId,omitempty" dynamodbav:",omitempty"`
	PlanExpiresAt     *time.Time     `json:"planExpiresAt,omitempty" dynamodbav:",omitempty"`
	PlanExpiresUnix   int64          `json:"-"`
	Status            EmployerStatus `json:"status"`
	PreferredLanguage string         `json:"preferredLanguage,omitempty" dynamodbav:",omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// PlanActive reports whether credits may be spent at now.
func (e *Employer) PlanActive(now time.Time) bool {
	return e.PlanExpiresAt != nil && e.PlanExpiresAt.After(now)
}

type Admin struct {
	ID           string    `json:"id" dynamodbav:"ID"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Skill struct {
	ID           string       `json:"id" dynamodbav:"ID"`
	Slug         string       `json:"slug"`
	NameEn       string       `json:"nameEn"`
	NameAr       string       `json:"nameAr"`
	BillingClass BillingClass `json:"billingClass"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Name returns the skill label for lang, falling back to English.
func (s Skill) Name(lang string) string {
	if lang == "ar" && s.NameAr != "" {
		return s.NameAr
	}
	return s.NameEn
}

type InterviewStatus string

const (
	InterviewPending   InterviewStatus = "pending"
	InterviewApproved  InterviewStatus = "approved"
	InterviewRejected  InterviewStatus = "rejected"
	InterviewCancelled InterviewStatus = "cancelled"
	InterviewCompleted InterviewStatus = "completed"
)

// Open reports whether the interview still blocks a new request for the same pair.
func (s InterviewStatus) Open() bool {
	return s == InterviewPending || s == InterviewApproved
}

type Interview struct {
	ID             string          `json:"id" dynamodbav:"ID"`
	EmployerID     string          `json:"employerId"`
	CandidateID    string          `json:"candidateId"`
	Status         InterviewStatus `json:"status"`
	ProposedAt     time.Time       `json:"proposedAt"`
	Location       string          `json:"location,omitempty" dynamodbav:",omitempty"`
	Notes          string          `json:"notes,omitempty" dynamodbav:",omitempty"`
	BillingClass   BillingClass    `json:"billingClass"`
	CreditsCharged int             `json:"creditsCharged"`
	ModeratorID    string          `json:"moderatorId,omitempty" dynamodbav:",omitempty"`
	ModerationNote string          `json:"moderationNote,omitempty" dynamodbav:",omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type ContactUnlock struct {
	EmployerID     string    `json:"employerId"`
	CandidateID    string    `json:"candidateId"`
	CreditsCharged int       `json:"creditsCharged"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Notification struct {
	ID            string    `json:"id" dynamodbav:"ID"`
	RecipientID   string    `json:"recipientId"`
	RecipientRole Role      `json:"recipientRole"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	Link          string    `json:"link,omitempty" dynamodbav:",omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Plan struct {
	ID           string  `json:"id" dynamodbav:"ID"`
	Slug         string  `json:"slug" yaml:"slug"`
	NameEn       string  `json:"nameEn" yaml:"name_en"`
	NameAr       string  `json:"nameAr" yaml:"name_ar"`
	Credits      int     `json:"credits" yaml:"credits"`
	Price        float64 `json:"price" yaml:"price"`
	Currency     string  `json:"currency" yaml:"currency"`
	DurationDays int     `json:"durationDays" yaml:"duration_days"`
	Active       bool    `json:"active" yaml:"active"`
	SortOrder    int     `json:"sortOrder" yaml:"sort_order"`
}

type PurchaseStatus string

const (
	PurchasePending PurchaseStatus = "pending"
	PurchasePaid    PurchaseStatus = "paid"
	PurchaseFailed  PurchaseStatus = "failed"
)

type Purchase struct {
	ID         string         `json:"id" dynamodbav:"ID"`
	EmployerID string         `json:"employerId"`
	PlanID     string         `json:"planId"`
	Amount     float64        `json:"amount"`
	Currency   string         `json:"currency"`
	Credits    int            `json:"credits"`
	Status     PurchaseStatus `json:"status"`
	InvoiceID  string         `json:"invoiceId,omitempty" dynamodbav:",omitempty"`
	PaymentID  string         `json:"paymentId,omitempty" dynamodbav:",omitempty"`
	PaymentURL string         `json:"paymentUrl,omitempty" dynamodbav:",omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	PaidAt     *time.Time     `json:"paidAt,omitempty" dynamodbav:",omitempty"`
}

type OTPPurpose string

const (
	OTPVerifyPhone   OTPPurpose = "verify_phone"
	OTPResetPassword OTPPurpose = "reset_password"
)

func (p OTPPurpose) Valid() bool {
	return p == OTPVerifyPhone || p == OTPResetPassword
}

type OTPRecord struct {
	Key         string     `dynamodbav:"Key"`
	Phone       string     `dynamodbav:"Phone"`
	Purpose     OTPPurpose `dynamodbav:"Purpose"`
	Hash        string     `dynamodbav:"Hash"`
	Salt        string     `dynamodbav:"Salt"`
	ExpiresAt   time.Time  `dynamodbav:"ExpiresAt"`
	Attempts    int        `dynamodbav:"Attempts"`
	SendCount   int        `dynamodbav:"SendCount"`
	WindowStart time.Time  `dynamodbav:"WindowStart"`
	LastSentAt  time.Time  `dynamodbav:"LastSentAt"`
	ConsumedAt  *time.Time `dynamodbav:"ConsumedAt,omitempty"`
}

func OTPKey(purpose OTPPurpose, phone string) string {
	return string(purpose) + "#" + phone
}
