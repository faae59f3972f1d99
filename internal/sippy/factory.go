package sippy

// Clients bundles the three consumers for one credential set. Each
// consumer owns an independent transport, so operations on different
// consumers never share state.
type Clients struct {
	Dashboard *DashboardClient
	Payments  *PaymentsClient
	Calls     *CallsClient
}

// NewClients builds all three consumers against one switch. Options apply
// to every consumer; the dashboard client keeps its shorter default
// timeout unless one is passed explicitly.
func NewClients(creds Credentials, opts ...Option) (*Clients, error) {
	dashboard, err := NewDashboardClient(creds, opts...)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentsClient(creds, opts...)
	if err != nil {
		return nil, err
	}
	calls, err := NewCallsClient(creds, opts...)
	if err != nil {
		return nil, err
	}
	return &Clients{Dashboard: dashboard, Payments: payments, Calls: calls}, nil
}
