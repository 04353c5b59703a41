package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/types"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Credentials is the result of opening a provider: every exposed account, in
// provider order, plus the signing key per address.
type Credentials struct {
	Accounts []types.Account
	Keys     map[common.Address]*ecdsa.PrivateKey
}

// Provider is one connectable wallet source. Open enumerates all exposed
// accounts, not just the first.
type Provider interface {
	ID() string
	Name() string
	Available() bool
	Open(ctx context.Context) (*Credentials, error)
}

// AccountWatcher is implemented by providers whose account list can change
// while a session is open. The returned stop function deregisters the
// listener; the session manager calls it on disconnect.
type AccountWatcher interface {
	WatchAccounts(onChange func()) (stop func(), err error)
}

// PassphraseFunc supplies the passphrase protecting a keystore.
type PassphraseFunc func() (string, error)

// KeystoreProvider exposes the accounts of a go-ethereum keystore directory.
type KeystoreProvider struct {
	cfg        config.WalletProviderConfig
	ks         *keystore.KeyStore
	passphrase PassphraseFunc
}

// NewKeystoreProvider creates a provider over a keystore directory. When the
// config names a passphrase env var it takes precedence over the supplied
// prompt function.
func NewKeystoreProvider(cfg config.WalletProviderConfig, passphrase PassphraseFunc) *KeystoreProvider {
	p := &KeystoreProvider{
		cfg:        cfg,
		passphrase: passphrase,
	}
	if cfg.PassphraseEnvVar != "" {
		p.passphrase = func() (string, error) {
			return os.Getenv(cfg.PassphraseEnvVar), nil
		}
	}
	return p
}

// ID returns the configured provider id.
func (p *KeystoreProvider) ID() string { return p.cfg.ID }

// Name returns the display name, falling back to the id.
func (p *KeystoreProvider) Name() string {
	if p.cfg.Name != "" {
		return p.cfg.Name
	}
	return p.cfg.ID
}

// Available reports whether the keystore directory holds at least one account.
func (p *KeystoreProvider) Available() bool {
	info, err := os.Stat(p.cfg.KeystorePath)
	if err != nil || !info.IsDir() {
		return false
	}
	return len(p.keystore().Accounts()) > 0
}

func (p *KeystoreProvider) keystore() *keystore.KeyStore {
	if p.ks == nil {
		p.ks = keystore.NewKeyStore(p.cfg.KeystorePath, keystore.StandardScryptN, keystore.StandardScryptP)
	}
	return p.ks
}

// Open unlocks and exports every account in the keystore.
func (p *KeystoreProvider) Open(ctx context.Context) (*Credentials, error) {
	ks := p.keystore()
	kaccounts := ks.Accounts()
	if len(kaccounts) == 0 {
		return nil, fmt.Errorf("%w: no accounts in keystore %s", types.ErrProviderUnavailable, p.cfg.KeystorePath)
	}

	pass := ""
	if p.passphrase != nil {
		var err error
		pass, err = p.passphrase()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain keystore passphrase: %w", err)
		}
	}

	creds := &Credentials{
		Keys: make(map[common.Address]*ecdsa.PrivateKey, len(kaccounts)),
	}

	for i, account := range kaccounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		keyJSON, err := ks.Export(account, pass, pass)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to unlock account %s: %v", types.ErrUserRejected, account.Address.Hex(), err)
		}

		key, err := keystore.DecryptKey(keyJSON, pass)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decrypt key for %s: %v", types.ErrUserRejected, account.Address.Hex(), err)
		}

		creds.Keys[account.Address] = key.PrivateKey
		creds.Accounts = append(creds.Accounts, types.Account{
			Address: account.Address.Hex(),
			Balance: types.BalancePending,
			Name:    fmt.Sprintf("Account %d", i+1),
		})
	}

	return creds, nil
}

// WatchAccounts registers for keystore wallet arrive/drop events.
func (p *KeystoreProvider) WatchAccounts(onChange func()) (func(), error) {
	sink := make(chan accounts.WalletEvent, 16)
	sub := p.keystore().Subscribe(sink)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-sink:
				if !ok {
					return
				}
				onChange()
			case <-sub.Err():
				return
			}
		}
	}()

	return func() {
		sub.Unsubscribe()
		close(done)
	}, nil
}

// EnvKeyProvider exposes a single account from a hex private key held in an
// environment variable.
type EnvKeyProvider struct {
	cfg config.WalletProviderConfig
}

// NewEnvKeyProvider creates a provider over an environment-variable key.
func NewEnvKeyProvider(cfg config.WalletProviderConfig) *EnvKeyProvider {
	return &EnvKeyProvider{cfg: cfg}
}

// ID returns the configured provider id.
func (p *EnvKeyProvider) ID() string { return p.cfg.ID }

// Name returns the display name, falling back to the id.
func (p *EnvKeyProvider) Name() string {
	if p.cfg.Name != "" {
		return p.cfg.Name
	}
	return p.cfg.ID
}

// Available reports whether the key env var is set.
func (p *EnvKeyProvider) Available() bool {
	return os.Getenv(p.cfg.KeyEnvVar) != ""
}

// Open parses the private key and exposes its single account.
func (p *EnvKeyProvider) Open(ctx context.Context) (*Credentials, error) {
	raw := strings.TrimPrefix(os.Getenv(p.cfg.KeyEnvVar), "0x")
	if raw == "" {
		return nil, fmt.Errorf("%w: %s is not set", types.ErrProviderUnavailable, p.cfg.KeyEnvVar)
	}

	keyBytes, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)

	return &Credentials{
		Accounts: []types.Account{{
			Address: addr.Hex(),
			Balance: types.BalancePending,
			Name:    "Account 1",
		}},
		Keys: map[common.Address]*ecdsa.PrivateKey{addr: key},
	}, nil
}

// NewProvider constructs a provider from its configuration.
func NewProvider(cfg config.WalletProviderConfig, passphrase PassphraseFunc) (Provider, error) {
	switch cfg.Type {
	case "keystore":
		return NewKeystoreProvider(cfg, passphrase), nil
	case "env":
		return NewEnvKeyProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}
