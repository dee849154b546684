package storage

import (
	"github.com/cuemby/burrow/pkg/types"
)

// ACMEAccount is a registered ACME account, keyed by contact email
type ACMEAccount struct {
	Email        string `json:"email"`
	KeyPEM       []byte `json:"key_pem"`
	Registration []byte `json:"registration"` // JSON-encoded registration resource
	Directory    string `json:"directory"`
}

// Store holds provider-side metadata that upstream systems cannot return in structured form
type Store interface {
	// ACME accounts
	SaveACMEAccount(account *ACMEAccount) error
	GetACMEAccount(email string) (*ACMEAccount, error)

	// Virtual host metadata, keyed by server name
	PutVirtualHost(vhost *types.VirtualHost) error
	GetVirtualHost(serverName string) (*types.VirtualHost, error)
	ListVirtualHosts() ([]*types.VirtualHost, error)
	DeleteVirtualHost(serverName string) error

	// Utility
	Close() error
}
