// Package keys guarantees a usable SSH keypair exists on the backend before
// a server boots with it.
package keys

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"golang.org/x/crypto/ssh"

	"github.com/envagent/envboot/fault"
)

// KeyPair is the manager's view of a backend keypair. PrivateKey is only set
// right after a server-side creation; the backend never returns it again.
type KeyPair struct {
	Name       string
	PublicKey  string
	PrivateKey string
}

// Backend is the slice of the compute keypair API the manager needs.
type Backend interface {
	GetKeyPair(name string) (KeyPair, error)
	ImportKeyPair(name, publicKey string) (KeyPair, error)
	CreateKeyPair(name string) (KeyPair, error)
}

// Manager ensures keypairs exist and persists generated private keys.
type Manager struct {
	backend Backend
	log     *slog.Logger
}

func NewManager(backend Backend, log *slog.Logger) *Manager {
	return &Manager{backend: backend, log: log}
}

// Ensure makes the named keypair available on the backend. An existing
// keypair is reused as-is. Otherwise, when publicKeyPath is set its content
// is validated and imported; without one the backend generates the pair and
// the private key is written to `<name>.pem` under saveDir with mode 0600.
// The boolean reports whether a keypair was created on this call.
func (m *Manager) Ensure(name, publicKeyPath, saveDir string) (KeyPair, bool, error) {
	if name == "" {
		return KeyPair{}, false, fault.New(fault.Validation, "keypair name is required")
	}

	existing, err := m.backend.GetKeyPair(name)
	if err == nil {
		m.log.Debug("Keypair already exists", "name", name)
		return existing, false, nil
	}
	if !fault.IsNotFound(err) {
		return KeyPair{}, false, fault.Wrap(fault.Backend, err, "failed to look up keypair %s", name)
	}

	if publicKeyPath != "" {
		raw, err := os.ReadFile(publicKeyPath)
		if err != nil {
			return KeyPair{}, false, fault.Wrap(fault.Validation, err, "cannot read public key %s", publicKeyPath)
		}
		if _, _, _, _, err := ssh.ParseAuthorizedKey(raw); err != nil {
			return KeyPair{}, false, fault.Wrap(fault.Validation, err, "%s is not a valid SSH public key", publicKeyPath)
		}

		imported, err := m.backend.ImportKeyPair(name, string(raw))
		if err != nil {
			return KeyPair{}, false, fault.Wrap(fault.Backend, err, "failed to import keypair %s", name)
		}
		m.log.Info("Keypair imported", "name", name, "public_key", publicKeyPath)
		return imported, true, nil
	}

	created, err := m.backend.CreateKeyPair(name)
	if err != nil {
		return KeyPair{}, false, fault.Wrap(fault.Backend, err, "failed to create keypair %s", name)
	}

	pemPath := filepath.Join(saveDir, name+".pem")
	if err := os.WriteFile(pemPath, []byte(created.PrivateKey), 0o600); err != nil {
		return KeyPair{}, false, fault.Wrap(fault.Backend, err, "keypair %s created but its private key could not be saved", name)
	}
	m.log.Info("Keypair created", "name", name, "private_key", pemPath)
	return created, true, nil
}

// Client is the gophercloud-backed Backend implementation.
type Client struct {
	Compute *gophercloud.ServiceClient
}

var _ Backend = (*Client)(nil)

func (c *Client) GetKeyPair(name string) (KeyPair, error) {
	kp, err := keypairs.Get(c.Compute, name, nil).Extract()
	if err != nil {
		return KeyPair{}, fault.FromBackend(err)
	}
	return KeyPair{Name: kp.Name, PublicKey: kp.PublicKey}, nil
}

func (c *Client) ImportKeyPair(name, publicKey string) (KeyPair, error) {
	kp, err := keypairs.Create(c.Compute, keypairs.CreateOpts{
		Name:      name,
		PublicKey: publicKey,
	}).Extract()
	if err != nil {
		return KeyPair{}, fault.FromBackend(err)
	}
	return KeyPair{Name: kp.Name, PublicKey: kp.PublicKey}, nil
}

func (c *Client) CreateKeyPair(name string) (KeyPair, error) {
	kp, err := keypairs.Create(c.Compute, keypairs.CreateOpts{Name: name}).Extract()
	if err != nil {
		return KeyPair{}, fault.FromBackend(err)
	}
	return KeyPair{Name: kp.Name, PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey}, nil
}
