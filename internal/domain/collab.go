package domain

import "context"

// LookupResult is the outcome of resolving an identity claim. Unknown
// identities come back as Success=false, never as an error; Err carries the
// upstream failure detail when there is one.
type LookupResult struct {
	Success    bool
	Address    string
	Proof      string
	Registered bool
	Err        string
}

// IdentityLookup resolves identity claims to stealth addresses.
type IdentityLookup interface {
	Lookup(ctx context.Context, claim string) (LookupResult, error)
}

// BalanceService reads the balance held at a stealth address.
type BalanceService interface {
	Balance(ctx context.Context, address string) (string, error)
}

// PaymentLinks creates hosted payment links. Metadata values must be
// non-empty; the collaborator rejects null-valued fields.
type PaymentLinks interface {
	CreateLink(ctx context.Context, amount, recipient string, metadata map[string]string) (string, error)
}

// Completer is the AI completion collaborator. An empty result with nil error
// means "no AI answer available"; callers fall back to structured replies.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}
