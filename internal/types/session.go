package types

// BalancePending is the placeholder balance for an account whose balance has
// not been fetched yet. Balances are back-filled asynchronously after connect
// so the session reports connected before any balance resolves.
const BalancePending = ""

// Account represents one wallet account exposed by a provider.
type Account struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Name    string `json:"name,omitempty"`
}

// HasBalance reports whether the account balance has been fetched at least once.
func (a Account) HasBalance() bool {
	return a.Balance != BalancePending
}

// WalletSession is an immutable snapshot of the active wallet session.
//
// Invariants: SelectedAccount, when present, is an element of Accounts;
// Connected implies the session manager holds a provider and signing key.
type WalletSession struct {
	ProviderID      string    `json:"provider_id,omitempty"`
	Accounts        []Account `json:"accounts"`
	SelectedAccount *Account  `json:"selected_account,omitempty"`
	ChainID         uint64    `json:"chain_id"`
	Connected       bool      `json:"connected"`
	Loading         bool      `json:"loading"`
}

// SelectedAddress returns the selected account address, or "" when none.
func (s WalletSession) SelectedAddress() string {
	if s.SelectedAccount == nil {
		return ""
	}
	return s.SelectedAccount.Address
}

// Clone returns a deep copy so observers can hold the snapshot without racing
// against the next session rebuild.
func (s WalletSession) Clone() WalletSession {
	out := s
	out.Accounts = make([]Account, len(s.Accounts))
	copy(out.Accounts, s.Accounts)
	if s.SelectedAccount != nil {
		sel := *s.SelectedAccount
		out.SelectedAccount = &sel
	}
	return out
}
