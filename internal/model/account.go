package model

import (
	"time"
)

// AccountType distinguishes how an account's balance is maintained.
// MOCK balances are tracked locally from execution deltas; PAPER and
// REAL balances come from the broker and are overwritten on sync.
type AccountType string

const (
	AccountTypeMock  AccountType = "MOCK"
	AccountTypePaper AccountType = "PAPER"
	AccountTypeReal  AccountType = "REAL"
)

// External reports whether the broker is the authority for this
// account's balance.
func (t AccountType) External() bool {
	return t == AccountTypePaper || t == AccountTypeReal
}

// Account holds broker credentials, the cached access token, and the
// tracked cash balance. Balance is the only field reconciliation writes.
type Account struct {
	ID             int64       `json:"id" db:"id"`
	AccountNo      string      `json:"account_no" db:"account_no"`
	AccountType    AccountType `json:"account_type" db:"account_type"`
	AppKey         string      `json:"-" db:"app_key"`
	AppSecret      string      `json:"-" db:"app_secret"`
	AccessToken    *string     `json:"-" db:"access_token"`
	TokenExpiredAt *time.Time  `json:"-" db:"token_expired_at"`
	AccountBalance float64     `json:"account_balance" db:"account_balance"`
	IsActive       bool        `json:"is_active" db:"is_active"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time  `json:"updated_at,omitempty" db:"updated_at"`
}

// TokenValid reports whether the cached access token can still be used
// at t. A one-minute margin avoids using a token that expires mid-call.
func (a *Account) TokenValid(t time.Time) bool {
	if a.AccessToken == nil || *a.AccessToken == "" || a.TokenExpiredAt == nil {
		return false
	}
	return a.TokenExpiredAt.After(t.Add(time.Minute))
}
