package signer

import (
	"bytes"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/sirupsen/logrus"
)

// GPGVerifier implements Verifier using an OpenPGP public key ring
type GPGVerifier struct {
	keyring openpgp.EntityList
}

// NewGPGVerifier creates a verifier from an armored or binary public key
func NewGPGVerifier(publicKey []byte) (*GPGVerifier, error) {
	if len(bytes.TrimSpace(publicKey)) == 0 {
		return nil, fmt.Errorf("public key is empty")
	}

	// Try to parse as armored key first
	entityList, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(publicKey))
	if err != nil {
		// Try as binary key
		entityList, err = openpgp.ReadKeyRing(bytes.NewReader(publicKey))
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}

	if len(entityList) == 0 {
		return nil, fmt.Errorf("no keys found in public key")
	}

	return &GPGVerifier{keyring: entityList}, nil
}

// Verify checks an armored (.asc) or binary (.sig) detached signature
func (v *GPGVerifier) Verify(data, signature []byte) error {
	var (
		entity *openpgp.Entity
		err    error
	)

	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte("-----BEGIN PGP SIGNATURE-----")) {
		entity, err = openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	} else {
		entity, err = openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	}
	if err != nil {
		return fmt.Errorf("bad signature: %w", err)
	}

	for name := range entity.Identities {
		logrus.Debugf("Good signature from %s", name)
		break
	}
	return nil
}
