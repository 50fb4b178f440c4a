// models/settlement.go
package models

import "time"

// SettlementStatus is the admin approval workflow state.
// PAID and REJECTED are terminal.
type SettlementStatus string

const (
	SettlementStatusPending  SettlementStatus = "pending"
	SettlementStatusApproved SettlementStatus = "approved"
	SettlementStatusPaid     SettlementStatus = "paid"
	SettlementStatusRejected SettlementStatus = "rejected"
)

// Settlement is one batched cash-out request over a set of matured payout
// coins. Invariants: PayoutAmount == TotalValue - FeeAmount,
// FeeAmount == floor(TotalValue * fee rate), TotalValue == sum of the linked
// payout coins' CoinValue.
type Settlement struct {
	ID            string           `gorm:"primaryKey;type:uuid" json:"id"`
	StreamerID    string           `gorm:"type:uuid;not null;index" json:"streamer_id"`
	PeriodStart   time.Time        `gorm:"not null" json:"period_start"`
	PeriodEnd     time.Time        `gorm:"not null" json:"period_end"`
	TotalValue    int64            `gorm:"not null" json:"total_value"`
	FeeAmount     int64            `gorm:"not null" json:"fee_amount"`
	PayoutAmount  int64            `gorm:"not null" json:"payout_amount"`
	Status        SettlementStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	PayoutMethod  string           `gorm:"type:varchar(64)" json:"payout_method,omitempty"`
	PayoutAccount string           `gorm:"type:varchar(128)" json:"payout_account,omitempty"`
	AdminMemo     string           `gorm:"type:text" json:"admin_memo,omitempty"`
	RejectReason  string           `gorm:"type:text" json:"reject_reason,omitempty"`
	StatementURL  string           `gorm:"type:text" json:"statement_url,omitempty"`
	RequestedAt   time.Time        `gorm:"not null" json:"requested_at"`
	ApprovedAt    *time.Time       `json:"approved_at,omitempty"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`
	RejectedAt    *time.Time       `json:"rejected_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (Settlement) TableName() string {
	return "settlements"
}
