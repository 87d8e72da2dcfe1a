package crypto

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// Authority keys are held at rest as Ethereum v3 keystore files so operators
// can manage them with standard wallet tooling. The functions here are the
// only path between an on-disk keystore and an in-memory PrivateKey.

var (
	// ErrNilKey is returned when an authority key is missing.
	ErrNilKey = errors.New("crypto: authority key required")
	// ErrKeystorePath is returned when the keystore file path is empty.
	ErrKeystorePath = errors.New("crypto: keystore path required")
)

// SaveToKeystore encrypts an authority key into a v3 keystore file at path,
// creating parent directories as needed. The file is written with owner-only
// permissions and replaces any previous keystore at the same path.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return ErrNilKey
	}
	if path == "" {
		return ErrKeystorePath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// The keystore package only writes into a directory it manages, so the
	// key is imported into a scratch directory and the produced file moved
	// to the requested path.
	scratch, err := os.MkdirTemp(dir, "authority-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	ks := keystore.NewKeyStore(scratch, keystore.StandardScryptN, keystore.StandardScryptP)
	account, err := ks.ImportECDSA(key.PrivateKey, passphrase)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(account.URL.Path, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts the authority key held in the v3 keystore file
// at path.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, ErrKeystorePath
	}
	encrypted, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(encrypted, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
