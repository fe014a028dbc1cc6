package model

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalMethod string

const (
	WithdrawalMethodBankTransfer  WithdrawalMethod = "BANK_TRANSFER"
	WithdrawalMethodMobileBanking WithdrawalMethod = "MOBILE_BANKING"
	WithdrawalMethodCash          WithdrawalMethod = "CASH"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "PENDING"
	WithdrawalStatusApproved WithdrawalStatus = "APPROVED"
	WithdrawalStatusRejected WithdrawalStatus = "REJECTED"
)

func (m WithdrawalMethod) Valid() bool {
	switch m {
	case WithdrawalMethodBankTransfer, WithdrawalMethodMobileBanking, WithdrawalMethodCash:
		return true
	}
	return false
}

// AccountDetails carries the payout destination. Required fields vary by
// method; the struct is stored encrypted, never in the clear.
type AccountDetails struct {
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	MobileNumber  string `json:"mobile_number,omitempty"`
}

// MissingFields lists the account detail fields the method requires but the
// input does not provide.
func (d AccountDetails) MissingFields(method WithdrawalMethod) []string {
	var missing []string
	switch method {
	case WithdrawalMethodBankTransfer:
		if d.AccountNumber == "" {
			missing = append(missing, "account_number")
		}
		if d.AccountName == "" {
			missing = append(missing, "account_name")
		}
		if d.BankName == "" {
			missing = append(missing, "bank_name")
		}
	case WithdrawalMethodMobileBanking:
		if d.MobileNumber == "" {
			missing = append(missing, "mobile_number")
		}
	}
	return missing
}

type WithdrawalRequest struct {
	ID     uuid.UUID        `json:"id" db:"id"`
	UserID uuid.UUID        `json:"user_id" db:"user_id"`
	Amount int64            `json:"amount" db:"amount"`
	Method WithdrawalMethod `json:"method" db:"method"`
	// Details is populated only for responses to the owner; at rest the
	// details live in EncryptedDetails with an HMAC integrity tag.
	Details          *AccountDetails  `json:"account_details,omitempty" db:"-"`
	EncryptedDetails string           `json:"-" db:"encrypted_details"`
	DetailsHMAC      string           `json:"-" db:"details_hmac"`
	Status           WithdrawalStatus `json:"status" db:"status"`
	RequestedAt      time.Time        `json:"requested_at" db:"requested_at"`
	DecidedAt        *time.Time       `json:"decided_at" db:"decided_at"`
	DecidedBy        *uuid.UUID       `json:"decided_by" db:"decided_by"`
}

type WithdrawInput struct {
	Amount         int64            `json:"amount" validate:"required,gt=0"`
	Method         WithdrawalMethod `json:"method" validate:"required"`
	AccountDetails AccountDetails   `json:"account_details"`
}

type WithdrawalDecisionRequest struct {
	Status WithdrawalStatus `json:"status"`
}
