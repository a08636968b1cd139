package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps named wallet seeds on the local filesystem, one directory per
// name:
//
//	<Directory>/<name>/key
//
// The key file holds the scheme on the first line and the hex seed on the
// second. Older single-line files are read as ed25519.
type KeyStore struct {
	Directory string
}

// KeyEntry describes one stored key.
type KeyEntry struct {
	Name     string
	Scheme   string
	Identity Identity
}

var ErrKeyExists = errors.New("wallet: key already exists")

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".pixelate", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) keyFilePath(name string) string {
	return filepath.Join(ks.Directory, name, "key")
}

func CheckKeyName(name string) error {
	if name == "" {
		return errors.New("key name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in key name", char)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

func (ks *KeyStore) saveKeyFile(filePath, scheme string, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrKeyExists, filePath)
		}
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(scheme + "\n" + hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func loadKeyFile(filePath string) (scheme string, seed []byte, err error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", nil, err
	}
	lines := strings.Fields(string(data))
	switch len(lines) {
	case 1:
		scheme = SchemeEd25519
		seed, err = ParseSeedHex(lines[0])
	case 2:
		scheme = lines[0]
		seed, err = ParseSeedHex(lines[1])
	default:
		return "", nil, fmt.Errorf("wallet: malformed key file %s", filePath)
	}
	if err != nil {
		return "", nil, fmt.Errorf("wallet: %s: %w", filePath, err)
	}
	return scheme, seed, nil
}

// Init stores seed under name and returns the resulting wallet.
func (ks *KeyStore) Init(name, scheme string, seed []byte, overwrite bool) (Wallet, string, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, "", err
	}
	if scheme == "" {
		scheme = SchemeEd25519
	}
	w, err := FromSeed(scheme, seed)
	if err != nil {
		return nil, "", err
	}
	filePath := ks.keyFilePath(name)
	if err := ks.saveKeyFile(filePath, scheme, seed, overwrite); err != nil {
		return nil, "", err
	}
	return w, filePath, nil
}

// Generate creates a fresh seed from random and stores it under name.
func (ks *KeyStore) Generate(name, scheme string, random io.Reader) (Wallet, string, error) {
	if random == nil {
		random = rand.Reader
	}
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(random, seed); err != nil {
		return nil, "", err
	}
	return ks.Init(name, scheme, seed, false)
}

// Load opens the wallet stored under name.
func (ks *KeyStore) Load(name string) (Wallet, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, err
	}
	scheme, seed, err := loadKeyFile(ks.keyFilePath(name))
	if err != nil {
		return nil, err
	}
	return FromSeed(scheme, seed)
}

// LoadFile opens a wallet from an explicit key file path.
func LoadFile(filePath string) (Wallet, error) {
	scheme, seed, err := loadKeyFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromSeed(scheme, seed)
}

// List returns every loadable key, sorted by name. Directories without a
// readable key file are skipped.
func (ks *KeyStore) List() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && CheckKeyName(entry.Name()) == nil {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var result []KeyEntry
	for _, name := range names {
		scheme, seed, err := loadKeyFile(ks.keyFilePath(name))
		if err != nil {
			continue
		}
		w, err := FromSeed(scheme, seed)
		if err != nil {
			continue
		}
		result = append(result, KeyEntry{Name: name, Scheme: scheme, Identity: w.Identity()})
	}
	return result, nil
}
