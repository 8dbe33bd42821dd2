package ingest

import (
	"fmt"
	"strings"

	"open-finance-sync-go/internal/models"
)

const (
	GenericDescription = "Transação Open Finance"
	NotesSeparator     = " | "

	pixMarker = "[PIX]"

	TagPixIncoming = "pix-entrada"
	TagPixOutgoing = "pix-saida"
	TagInstallment = "installment"
)

// Enrichment is the presentation data derived from one provider transaction.
type Enrichment struct {
	Description string
	Tags        []string
	Notes       []string
}

// NotesText joins the notes, or returns nil when there are none.
func (e Enrichment) NotesText() *string {
	if len(e.Notes) == 0 {
		return nil
	}
	s := strings.Join(e.Notes, NotesSeparator)
	return &s
}

type enrichment struct {
	tx          *models.ProviderTransaction
	direction   models.TransactionType
	description string
	tags        tagSet
	notes       []string
}

// descriptionRule adjusts the description when its predicate holds.
type descriptionRule struct {
	name       string
	applies    func(e *enrichment) bool
	contribute func(e *enrichment)
}

// metadataRule contributes one "Label: value" note and optionally a tag.
type metadataRule struct {
	label string
	value func(tx *models.ProviderTransaction) string
	tag   func(tx *models.ProviderTransaction, value string) string
}

var descriptionRules = []descriptionRule{
	{
		name:    "pix",
		applies: func(e *enrichment) bool { return isPix(e.tx) },
		contribute: func(e *enrichment) {
			e.description = pixMarker + " " + e.description
			if name := pixCounterparty(e.tx, e.direction); name != "" {
				e.description += " - " + name
			}
			if e.direction == models.TransactionIncome {
				e.tags.add(TagPixIncoming)
			} else {
				e.tags.add(TagPixOutgoing)
			}
		},
	},
	{
		name: "installment",
		applies: func(e *enrichment) bool {
			m := e.tx.CreditCardMetadata
			return m != nil && m.TotalInstallments > 1
		},
		contribute: func(e *enrichment) {
			e.description += " " + installmentLabel(e.tx.CreditCardMetadata, "(%d/%d)")
			e.tags.add(TagInstallment)
		},
	},
	{
		name:    "merchant",
		applies: func(e *enrichment) bool { return merchantName(e.tx) != "" },
		contribute: func(e *enrichment) {
			name := merchantName(e.tx)
			if !strings.Contains(strings.ToLower(e.description), strings.ToLower(name)) {
				e.description = name + " - " + e.description
			}
		},
	},
}

var metadataRules = []metadataRule{
	{
		label: "Método",
		value: paymentMethod,
		tag:   func(_ *models.ProviderTransaction, v string) string { return v },
	},
	{
		label: "Referência",
		value: func(tx *models.ProviderTransaction) string {
			if tx.PaymentData == nil {
				return ""
			}
			return tx.PaymentData.ReferenceNumber
		},
	},
	{
		label: "Parcela",
		value: func(tx *models.ProviderTransaction) string {
			m := tx.CreditCardMetadata
			if m == nil || m.TotalInstallments <= 1 {
				return ""
			}
			return installmentLabel(m, "%d/%d")
		},
	},
	{
		label: "Estabelecimento",
		value: merchantName,
	},
	{
		label: "MCC",
		value: mcc,
	},
	{
		label: "Categoria do banco",
		value: func(tx *models.ProviderTransaction) string { return tx.Category },
		tag:   func(_ *models.ProviderTransaction, v string) string { return v },
	},
	{
		label: "Status",
		value: func(tx *models.ProviderTransaction) string { return tx.Status },
	},
	{
		label: "Código",
		value: func(tx *models.ProviderTransaction) string { return tx.ProviderCode },
	},
}

// Enrich builds the description, tags and notes of a transaction whose
// direction has already been classified. Description rules run in order and
// each one builds on the previous result.
func Enrich(tx models.ProviderTransaction, direction models.TransactionType) Enrichment {
	e := &enrichment{
		tx:          &tx,
		direction:   direction,
		description: baseDescription(&tx),
	}

	for _, rule := range descriptionRules {
		if rule.applies(e) {
			rule.contribute(e)
		}
	}

	for _, rule := range metadataRules {
		value := strings.TrimSpace(rule.value(&tx))
		if value == "" {
			continue
		}
		e.notes = append(e.notes, rule.label+": "+Sanitize(value))
		if rule.tag != nil {
			e.tags.add(rule.tag(&tx, value))
		}
	}

	return Enrichment{
		Description: truncate(e.description, MaxDescriptionLength),
		Tags:        e.tags.list(),
		Notes:       e.notes,
	}
}

func baseDescription(tx *models.ProviderTransaction) string {
	for _, candidate := range []string{tx.Description, tx.DescriptionRaw} {
		if s := Sanitize(candidate); s != "" {
			return s
		}
	}
	return GenericDescription
}

func paymentMethod(tx *models.ProviderTransaction) string {
	if tx.PaymentData != nil && strings.TrimSpace(tx.PaymentData.PaymentMethod) != "" {
		return strings.TrimSpace(tx.PaymentData.PaymentMethod)
	}
	if strings.EqualFold(strings.TrimSpace(tx.OperationType), "PIX") {
		return "PIX"
	}
	return ""
}

func isPix(tx *models.ProviderTransaction) bool {
	return strings.EqualFold(paymentMethod(tx), "PIX")
}

// pixCounterparty is the payer of an incoming payment or the receiver of an
// outgoing one.
func pixCounterparty(tx *models.ProviderTransaction, direction models.TransactionType) string {
	if tx.PaymentData == nil {
		return ""
	}
	party := tx.PaymentData.Receiver
	if direction == models.TransactionIncome {
		party = tx.PaymentData.Payer
	}
	if party == nil {
		return ""
	}
	return Sanitize(party.Name)
}

func merchantName(tx *models.ProviderTransaction) string {
	if tx.CreditCardMetadata != nil {
		if name := Sanitize(tx.CreditCardMetadata.PayeeName); name != "" {
			return name
		}
	}
	if tx.Merchant != nil {
		for _, candidate := range []string{tx.Merchant.BusinessName, tx.Merchant.Name} {
			if name := Sanitize(candidate); name != "" {
				return name
			}
		}
	}
	return ""
}

func mcc(tx *models.ProviderTransaction) string {
	if tx.CreditCardMetadata == nil {
		return ""
	}
	return strings.TrimSpace(string(tx.CreditCardMetadata.PayeeMCC))
}

func installmentLabel(m *models.CreditCardMetadata, format string) string {
	n := m.InstallmentNumber
	if n < 1 {
		n = 1
	}
	return fmt.Sprintf(format, n, m.TotalInstallments)
}
