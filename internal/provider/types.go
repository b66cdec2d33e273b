package provider

import "github.com/shopspring/decimal"

// Wire shapes for the aggregation provider. These are the only place the
// provider's response schema appears; everything past Classify works with
// local models.

type AuthSessionResponse struct {
	RedirectURL  string `json:"redirect_url"`
	SessionToken string `json:"session_token"`
}

type Account struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Type             string           `json:"type"`
	Currency         string           `json:"currency"`
	Balance          decimal.Decimal  `json:"balance"`
	AvailableBalance *decimal.Decimal `json:"available_balance,omitempty"`
	CreditLimit      *decimal.Decimal `json:"credit_limit,omitempty"`
	Token            string           `json:"token,omitempty"`
}

type AccountsResponse struct {
	Accounts []Account `json:"results"`
}

// Transaction carries the amount as the raw wire string; internal/money
// validates and parses it, rejecting sub-cent precision.
type Transaction struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	PostedAt    string `json:"posted_at"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// AccountSnapshot rides along with every transaction listing so balances and
// the transactions they reflect come from the same provider read.
type AccountSnapshot struct {
	Balance          decimal.Decimal  `json:"balance"`
	AvailableBalance *decimal.Decimal `json:"available_balance,omitempty"`
}

type TransactionsResponse struct {
	Transactions []Transaction   `json:"results"`
	Account      AccountSnapshot `json:"account"`
}

type ConnectionStatusResponse struct {
	ConnectionID string `json:"connection_id"`
	Status       string `json:"status"`
}
