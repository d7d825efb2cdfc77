package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

const emptyMetadataJSON = "{}"

// Metadata is the type-specific audit payload attached to a transaction.
// Each transaction type accepts exactly one concrete variant.
type Metadata interface {
	// PendingAmount returns the amount to apply when a pending transaction settles.
	PendingAmount() (Points, bool)
	accepts(transactionType TransactionType) bool
}

// RechargeMetadata accompanies recharge transactions.
type RechargeMetadata struct {
	OriginalAmount   Points `json:"originalAmount"`
	PaymentMethodRef string `json:"paymentMethodRef,omitempty"`
}

func (metadata RechargeMetadata) PendingAmount() (Points, bool) {
	return metadata.OriginalAmount, metadata.OriginalAmount > 0
}

func (RechargeMetadata) accepts(transactionType TransactionType) bool {
	return transactionType == TransactionRecharge
}

// TransferMetadata accompanies each leg of a purchase or a user-to-user transfer.
type TransferMetadata struct {
	CounterpartyUserID string `json:"otherUserId"`
	CounterpartyTxID   string `json:"otherTransactionId,omitempty"`
	PostID             string `json:"postId,omitempty"`
}

func (TransferMetadata) PendingAmount() (Points, bool) {
	return 0, false
}

func (TransferMetadata) accepts(transactionType TransactionType) bool {
	switch transactionType {
	case TransactionPostPayment, TransactionPostEarning, TransactionTransfer:
		return true
	default:
		return false
	}
}

// CashoutMetadata accompanies cashout requests.
type CashoutMetadata struct {
	OriginalAmount  Points `json:"originalAmount"`
	FeePercent      string `json:"feePercent,omitempty"`
	FeeAmount       Points `json:"feeAmount"`
	NetAmount       Points `json:"netAmount"`
	PayoutMethodRef string `json:"payoutMethodRef,omitempty"`
}

func (metadata CashoutMetadata) PendingAmount() (Points, bool) {
	return metadata.OriginalAmount, metadata.OriginalAmount > 0
}

func (CashoutMetadata) accepts(transactionType TransactionType) bool {
	return transactionType == TransactionCashout
}

// AdjustmentMetadata accompanies admin adjustments.
type AdjustmentMetadata struct {
	OriginalAmount Points `json:"originalAmount"`
	Reason         string `json:"reason,omitempty"`
}

func (metadata AdjustmentMetadata) PendingAmount() (Points, bool) {
	return metadata.OriginalAmount, metadata.OriginalAmount != 0
}

func (AdjustmentMetadata) accepts(transactionType TransactionType) bool {
	return transactionType == TransactionAdminAdjustment
}

// EncodeMetadata renders metadata as a JSON object for storage.
func EncodeMetadata(transactionType TransactionType, metadata Metadata) (string, error) {
	if metadata == nil {
		return emptyMetadataJSON, nil
	}
	if !metadata.accepts(transactionType) {
		return "", fmt.Errorf("%w: %T does not belong to %s", ErrInvalidMetadata, metadata, transactionType)
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return string(encoded), nil
}

// DecodeMetadata parses stored JSON into the variant that belongs to transactionType.
func DecodeMetadata(transactionType TransactionType, raw string) (Metadata, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" || normalized == emptyMetadataJSON || normalized == "null" {
		return nil, nil
	}
	var (
		metadata Metadata
		err      error
	)
	switch transactionType {
	case TransactionRecharge:
		var value RechargeMetadata
		err = json.Unmarshal([]byte(normalized), &value)
		metadata = value
	case TransactionPostPayment, TransactionPostEarning, TransactionTransfer:
		var value TransferMetadata
		err = json.Unmarshal([]byte(normalized), &value)
		metadata = value
	case TransactionCashout:
		var value CashoutMetadata
		err = json.Unmarshal([]byte(normalized), &value)
		metadata = value
	case TransactionAdminAdjustment:
		var value AdjustmentMetadata
		err = json.Unmarshal([]byte(normalized), &value)
		metadata = value
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransactionType, transactionType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return metadata, nil
}

// MetadataMap flattens metadata into a generic map for API responses.
func MetadataMap(metadata Metadata) map[string]any {
	result := map[string]any{}
	if metadata == nil {
		return result
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return result
	}
	_ = json.Unmarshal(encoded, &result)
	return result
}
