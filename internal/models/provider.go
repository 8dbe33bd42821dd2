package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Institution represents a connector offered by the provider
type Institution struct {
	Id            int    `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Country       string `json:"country"`
	ImageURL      string `json:"imageUrl"`
	PrimaryColor  string `json:"primaryColor"`
	IsOpenFinance bool   `json:"isOpenFinance"`
}

// ConnectToken is a short-lived widget token scoped to one end user
type ConnectToken struct {
	AccessToken string `json:"accessToken"`
}

// ProviderItem is the provider-side handle of one institution linkage
type ProviderItem struct {
	Id               string             `json:"id"`
	Status           string             `json:"status"`
	ExecutionStatus  string             `json:"executionStatus"`
	Connector        ProviderConnector  `json:"connector"`
	Error            *ProviderItemError `json:"error"`
	ConsentExpiresAt *time.Time         `json:"consentExpiresAt"`
	LastUpdatedAt    *time.Time         `json:"lastUpdatedAt"`
}

// ProviderConnector identifies the institution behind an item
type ProviderConnector struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

// ProviderItemError is the failure reported by the provider for an item
type ProviderItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProviderAccount is the provider representation of a bank or card account
type ProviderAccount struct {
	Id            string          `json:"id"`
	ItemId        string          `json:"itemId"`
	Type          string          `json:"type"`
	Subtype       string          `json:"subtype"`
	Name          string          `json:"name"`
	MarketingName string          `json:"marketingName"`
	Number        string          `json:"number"`
	Balance       decimal.Decimal `json:"balance"`
	CurrencyCode  string          `json:"currencyCode"`
	CreditData    *CreditData     `json:"creditData"`
}

// CreditData carries credit card limits
type CreditData struct {
	AvailableCreditLimit *decimal.Decimal `json:"availableCreditLimit"`
	CreditLimit          *decimal.Decimal `json:"creditLimit"`
	BalanceDueDate       *time.Time       `json:"balanceDueDate"`
}

// ProviderTransaction is one provider-side transaction with its loosely typed
// payment metadata
type ProviderTransaction struct {
	Id                 string              `json:"id"`
	AccountId          string              `json:"accountId"`
	Description        string              `json:"description"`
	DescriptionRaw     string              `json:"descriptionRaw"`
	Amount             decimal.Decimal     `json:"amount"`
	Date               time.Time           `json:"date"`
	Type               string              `json:"type"`
	Status             string              `json:"status"`
	Category           string              `json:"category"`
	ProviderCode       string              `json:"providerCode"`
	OperationType      string              `json:"operationType"`
	PaymentData        *PaymentData        `json:"paymentData"`
	CreditCardMetadata *CreditCardMetadata `json:"creditCardMetadata"`
	Merchant           *Merchant           `json:"merchant"`
}

// PaymentData describes how the money moved
type PaymentData struct {
	Payer           *PaymentParticipant `json:"payer"`
	Receiver        *PaymentParticipant `json:"receiver"`
	PaymentMethod   string              `json:"paymentMethod"`
	ReferenceNumber string              `json:"referenceNumber"`
	Reason          string              `json:"reason"`
}

// PaymentParticipant is one side of a payment
type PaymentParticipant struct {
	Name           string `json:"name"`
	DocumentNumber *struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"documentNumber"`
}

// CreditCardMetadata carries installment and payee data for card purchases
type CreditCardMetadata struct {
	InstallmentNumber int              `json:"installmentNumber"`
	TotalInstallments int              `json:"totalInstallments"`
	TotalAmount       *decimal.Decimal `json:"totalAmount"`
	PayeeMCC          Code             `json:"payeeMCC"`
	PayeeName         string           `json:"payeeName"`
	CardNumber        string           `json:"cardNumber"`
	BillId            string           `json:"billId"`
}

// Merchant is the establishment behind a card transaction
type Merchant struct {
	Name         string `json:"name"`
	BusinessName string `json:"businessName"`
	Category     string `json:"category"`
	Cnpj         string `json:"cnpj"`
}

// Code is an identifier that institutions send either as a JSON string or as
// a bare number, e.g. merchant category codes.
type Code string

func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("code must be a string or number: %w", err)
	}
	*c = Code(n.String())
	return nil
}
