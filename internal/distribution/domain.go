package distribution

import (
	"errors"

	"github.com/odyssey-erp/finbatch/internal/cgi"
)

// ErrUnconfigured indicates a distribution mapping required by a batch family
// was never set up. Resolution must fail loudly, never default.
var ErrUnconfigured = errors.New("distribution: mapping not configured")

// ErrCodeNotFound indicates an unknown distribution code id.
var ErrCodeNotFound = errors.New("distribution: code not found")

// Code is one named general-ledger account.
type Code struct {
	ID                   int64
	Name                 string
	Client               string
	ResponsibilityCentre string
	ServiceLine          string
	STOB                 string
	ProjectCode          string

	// Linked codes: the service-fee account for a fee schedule, the GST
	// accounts for service and statutory fees, and the partner account fee
	// revenue is disbursed to.
	ServiceFeeDistributionID       *int64
	ServiceFeeGSTDistributionID    *int64
	StatutoryFeesGSTDistributionID *int64
	DisbursementDistributionID     *int64

	// StopEJV suppresses further batching against this code after an
	// unresolved posting failure until an operator clears it.
	StopEJV bool

	// AccountID links the code to a government payment account, when any.
	AccountID *int64
}

// GLString renders the code as the 50-character distribution string.
func (c Code) GLString() (string, error) {
	return cgi.DistributionGL(c.Client, c.ResponsibilityCentre, c.ServiceLine, c.STOB, c.ProjectCode)
}

// Pair is one balanced double-entry posting: which GL is debited and which is
// credited for the same absolute amount.
type Pair struct {
	Debit  string
	Credit string
}

// ForPartnerDisbursement resolves the posting for a registry-to-partner
// disbursement: debit the registry's fee GL, credit the partner's linked GL.
// A reversal (refund or chargeback) flips the direction.
func ForPartnerDisbursement(fee, partner Code, reversal bool) (Pair, error) {
	feeGL, err := fee.GLString()
	if err != nil {
		return Pair{}, err
	}
	partnerGL, err := partner.GLString()
	if err != nil {
		return Pair{}, err
	}
	if reversal {
		return Pair{Debit: partnerGL, Credit: feeGL}, nil
	}
	return Pair{Debit: feeGL, Credit: partnerGL}, nil
}

// ForGovPayment resolves the posting for a government inter-account payment:
// credit the fee's GL, debit the paying account's GL, swapped for a refund
// reversal.
func ForGovPayment(line, account Code, reversal bool) (Pair, error) {
	lineGL, err := line.GLString()
	if err != nil {
		return Pair{}, err
	}
	accountGL, err := account.GLString()
	if err != nil {
		return Pair{}, err
	}
	if reversal {
		return Pair{Debit: lineGL, Credit: accountGL}, nil
	}
	return Pair{Debit: accountGL, Credit: lineGL}, nil
}

// ForEFTTransfer resolves the holding-account transfer posting. The pair is
// computed from the transfer direction, not stored: a forward transfer moves
// funds out of the holding GL into the partner GL.
func ForEFTTransfer(holdingGL, partnerGL string, reversal bool) (Pair, error) {
	if holdingGL == "" || partnerGL == "" {
		return Pair{}, ErrUnconfigured
	}
	if reversal {
		return Pair{Debit: partnerGL, Credit: holdingGL}, nil
	}
	return Pair{Debit: holdingGL, Credit: partnerGL}, nil
}
