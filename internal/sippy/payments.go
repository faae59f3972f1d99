package sippy

import (
	"context"
	"strings"

	"github.com/flowpbx/sippyctl/internal/xmlrpc"
)

// PaymentsClient serves billing operations: payment lookup and listing,
// plus the three balance mutations. All operations use the fully-parsed
// response path.
type PaymentsClient struct {
	*Client
}

// NewPaymentsClient builds a payments consumer for the given switch.
func NewPaymentsClient(creds Credentials, opts ...Option) (*PaymentsClient, error) {
	c, err := NewClient(creds, opts...)
	if err != nil {
		return nil, err
	}
	return &PaymentsClient{Client: c}, nil
}

// Payment is one reconstructed payment record. Method is derived after
// parsing and is always set, falling back to a generic label when no
// positive signal exists.
type Payment struct {
	ID          int
	AccountID   int
	CustomerID  int
	Amount      float64
	Currency    string
	TxID        string
	TxError     string
	TxResult    int
	ByCard      bool
	ByVoucher   bool
	Notes       string
	PaymentTime string
	Method      string
}

// PaymentFilter narrows a payment listing. Zero-valued fields are omitted
// from the request.
type PaymentFilter struct {
	StartDate  string
	EndDate    string
	AccountID  int
	CustomerID int
	Type       string
}

// PaymentInfo fetches a single payment by id.
func (c *PaymentsClient) PaymentInfo(ctx context.Context, paymentID int) (*Payment, error) {
	const method = "getPaymentInfo"
	body, err := c.CallRaw(ctx, method, []xmlrpc.Member{
		{Name: "i_payment", Value: paymentID},
	})
	if err != nil {
		return nil, err
	}
	payments, err := c.parsePayments(method, body)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, &APIError{Method: method, Message: "payment not found"}
	}
	return &payments[0], nil
}

// Payments lists payments matching the filter.
func (c *PaymentsClient) Payments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	const method = "getPaymentsList"
	params := []xmlrpc.Member{}
	if filter.StartDate != "" {
		params = append(params, xmlrpc.Member{Name: "start_date", Value: filter.StartDate})
	}
	if filter.EndDate != "" {
		params = append(params, xmlrpc.Member{Name: "end_date", Value: filter.EndDate})
	}
	if filter.AccountID != 0 {
		params = append(params, xmlrpc.Member{Name: "i_account", Value: filter.AccountID})
	}
	if filter.CustomerID != 0 {
		params = append(params, xmlrpc.Member{Name: "i_customer", Value: filter.CustomerID})
	}
	if filter.Type != "" {
		params = append(params, xmlrpc.Member{Name: "type", Value: filter.Type})
	}

	body, err := c.CallRaw(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return c.parsePayments(method, body)
}

// AddFunds credits real money onto an account's balance.
func (c *PaymentsClient) AddFunds(ctx context.Context, accountID int, amount float64, currency, notes string) (xmlrpc.Fields, error) {
	return c.balanceOp(ctx, "addFunds", accountID, amount, currency, notes)
}

// AddCredit applies a non-monetary credit adjustment.
func (c *PaymentsClient) AddCredit(ctx context.Context, accountID int, amount float64, currency, notes string) (xmlrpc.Fields, error) {
	return c.balanceOp(ctx, "addCredit", accountID, amount, currency, notes)
}

// Debit charges an account's balance.
func (c *PaymentsClient) Debit(ctx context.Context, accountID int, amount float64, currency, notes string) (xmlrpc.Fields, error) {
	return c.balanceOp(ctx, "debitAccount", accountID, amount, currency, notes)
}

func (c *PaymentsClient) balanceOp(ctx context.Context, method string, accountID int, amount float64, currency, notes string) (xmlrpc.Fields, error) {
	params := []xmlrpc.Member{
		{Name: "i_account", Value: accountID},
		{Name: "amount", Value: amount},
		{Name: "currency", Value: currency},
	}
	if notes != "" {
		params = append(params, xmlrpc.Member{Name: "notes", Value: notes})
	}
	return c.Call(ctx, method, params)
}

// parsePayments reconstructs full payment records. The payments array
// member is the primary shape; responses carrying one flat struct (single
// payment lookups) fall back to a flat field scan. When both shapes carry
// a field, the array value wins.
func (c *PaymentsClient) parsePayments(method string, body []byte) ([]Payment, error) {
	resp, err := xmlrpc.Unmarshal(body)
	if err != nil {
		return nil, c.wireError(method, body, err)
	}
	if resp.Value == nil || resp.Value.Struct == nil {
		return nil, nil
	}

	top, err := resp.Value.Struct.Fields()
	if err != nil {
		return nil, &ParseError{Method: method, Snippet: snippet(body), Err: err}
	}

	arr, hasArray := top["payments"].([]any)
	if !hasArray {
		// Single-object case: the whole struct is one payment.
		p := paymentFromFields(top)
		if p == (Payment{}) {
			return nil, nil
		}
		p.Method = classifyPaymentMethod(&p)
		return []Payment{p}, nil
	}

	flat := make(xmlrpc.Fields, len(top))
	for k, v := range top {
		if k != "payments" {
			flat[k] = v
		}
	}

	payments := make([]Payment, 0, len(arr))
	for _, e := range arr {
		rec, ok := e.(xmlrpc.Fields)
		if !ok {
			continue
		}
		merged := make(xmlrpc.Fields, len(flat)+len(rec))
		for k, v := range flat {
			merged[k] = v
		}
		for k, v := range rec {
			merged[k] = v
		}
		p := paymentFromFields(merged)
		p.Method = classifyPaymentMethod(&p)
		payments = append(payments, p)
	}
	return payments, nil
}

func paymentFromFields(f xmlrpc.Fields) Payment {
	return Payment{
		ID:          f.Int("i_payment", 0),
		AccountID:   f.Int("i_account", 0),
		CustomerID:  f.Int("i_customer", 0),
		Amount:      f.Float("amount", 0),
		Currency:    f.String("currency"),
		TxID:        f.String("tx_id"),
		TxError:     f.String("tx_error"),
		TxResult:    f.Int("tx_result", 0),
		ByCard:      f.Bool("by_credit_debit_card"),
		ByVoucher:   f.Bool("by_voucher"),
		Notes:       f.String("notes"),
		PaymentTime: f.String("payment_time"),
	}
}

// Payment method labels. The switch records how a payment entered the
// system only indirectly, so the label is reconstructed from transaction
// ids, platform flags, and free-text notes.
const (
	MethodStripeCard  = "stripe card"
	MethodPayPal      = "paypal"
	MethodCreditCard  = "credit card"
	MethodVoucher     = "voucher"
	MethodManualTopup = "manual top-up"
)

// methodRule is one classification rule: the first rule whose predicate
// matches supplies the label.
type methodRule struct {
	label string
	match func(*Payment) bool
}

// methodRules is evaluated top-down. Structured signals outrank free text:
// transaction-id patterns first, then platform flags, then notes keywords.
var methodRules = []methodRule{
	{MethodStripeCard, func(p *Payment) bool {
		return strings.HasPrefix(p.TxID, "ch_") || strings.HasPrefix(p.TxID, "pi_")
	}},
	{MethodPayPal, func(p *Payment) bool {
		return strings.Contains(p.TxID, "PAYID")
	}},
	{MethodCreditCard, func(p *Payment) bool { return p.ByCard }},
	{MethodVoucher, func(p *Payment) bool { return p.ByVoucher }},
	{MethodStripeCard, func(p *Payment) bool { return notesContain(p, "stripe") }},
	{MethodPayPal, func(p *Payment) bool { return notesContain(p, "paypal") }},
	{MethodManualTopup, func(p *Payment) bool { return notesContain(p, "manual") }},
}

func notesContain(p *Payment, keyword string) bool {
	return strings.Contains(strings.ToLower(p.Notes), keyword)
}

// classifyPaymentMethod labels how a payment was made. Records with no
// matching signal default to a manual top-up.
func classifyPaymentMethod(p *Payment) string {
	for _, r := range methodRules {
		if r.match(p) {
			return r.label
		}
	}
	return MethodManualTopup
}
