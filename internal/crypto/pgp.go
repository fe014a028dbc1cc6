package crypto

import (
	"crypto"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"
)

// PGPManager owns the key pair used to encrypt withdrawal account details
// at rest.
type PGPManager struct {
	entity  *openpgp.Entity
	keyPath string
}

// NewPGPManager loads the key from keyPath, generating and persisting a new
// one on first run.
func NewPGPManager(keyPath string) (*PGPManager, error) {
	manager := &PGPManager{keyPath: keyPath}

	if err := manager.init(); err != nil {
		return nil, fmt.Errorf("failed to initialize PGP: %w", err)
	}

	return manager, nil
}

func (m *PGPManager) init() error {
	if _, err := os.Stat(m.keyPath); err == nil {
		entity, err := m.loadKeyFromFile()
		if err != nil {
			return fmt.Errorf("failed to load PGP key: %w", err)
		}
		m.entity = entity
		return nil
	}

	return m.generateAndSaveKey()
}

func (m *PGPManager) generateAndSaveKey() error {
	config := &packet.Config{
		Rand:          rand.Reader,
		RSABits:       4096,
		DefaultHash:   crypto.SHA256,
		DefaultCipher: packet.CipherAES256,
	}

	entity, err := openpgp.NewEntity(
		"Traffic Finance API Server",
		"",
		"finance-api@yourdomain.com",
		config,
	)
	if err != nil {
		return fmt.Errorf("failed to generate entity: %w", err)
	}

	for _, id := range entity.Identities {
		err := id.SelfSignature.SignUserId(
			id.UserId.Id,
			entity.PrimaryKey,
			entity.PrivateKey,
			config,
		)
		if err != nil {
			return fmt.Errorf("failed to sign identity: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(m.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	file, err := os.OpenFile(m.keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer file.Close()

	armorWriter, err := armor.Encode(file, openpgp.PrivateKeyType, nil)
	if err != nil {
		return fmt.Errorf("failed to create armor writer: %w", err)
	}

	if err := entity.SerializePrivate(armorWriter, config); err != nil {
		armorWriter.Close()
		return fmt.Errorf("failed to serialize private key: %w", err)
	}

	if err := armorWriter.Close(); err != nil {
		return fmt.Errorf("failed to close armor writer: %w", err)
	}

	m.entity = entity
	return nil
}

// GetEntity returns the PGP entity.
func (m *PGPManager) GetEntity() *openpgp.Entity {
	return m.entity
}

func (m *PGPManager) loadKeyFromFile() (*openpgp.Entity, error) {
	file, err := os.Open(m.keyPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	block, err := armor.Decode(file)
	if err != nil {
		return nil, err
	}

	if block.Type != openpgp.PrivateKeyType {
		return nil, errors.New("file is not a private key")
	}

	return openpgp.ReadEntity(packet.NewReader(block.Body))
}
