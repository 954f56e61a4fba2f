package config

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/afero"
)

// InitialSSHUser is the login Initialize creates.
const InitialSSHUser = "pipesh"

// Initialize writes a default configuration, host key and log directory to
// dir. Files that already exist are left alone.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return initialize(afero.NewBasePathFs(afero.NewOsFs(), dir), logger)
}

func initialize(fs afero.Fs, logger *log.Logger) (*Configuration, error) {
	logger.Printf("Writing %s...", ConfigurationName)
	if err := writeIfMissing(fs, logger, ConfigurationName, 0600, func() ([]byte, error) {
		password, err := generatePassword()
		if err != nil {
			return nil, err
		}
		logger.Printf("- SSH user %q has password %q, it won't be shown again", InitialSSHUser, password)
		return configWithUser(InitialSSHUser, password)
	}); err != nil {
		return nil, err
	}

	logger.Printf("Generating host key %s...", PrivateKeyName)
	if err := writeIfMissing(fs, logger, PrivateKeyName, 0600, generateHostKey); err != nil {
		return nil, err
	}

	logger.Printf("Creating %s...", LogsDirName)
	if err := fs.MkdirAll(LogsDirName, 0700); err != nil {
		return nil, err
	}

	return load(fs)
}

func writeIfMissing(fs afero.Fs, logger *log.Logger, name string, perm os.FileMode, contents func() ([]byte, error)) error {
	exists, err := afero.Exists(fs, name)
	if err != nil {
		return err
	}
	if exists {
		logger.Printf("- %s already exists, skipping", name)
		return nil
	}

	data, err := contents()
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, name, data, perm)
}

func generateHostKey() ([]byte, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// generatePassword returns a random URL safe password.
func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var emptyUsers = []byte("  users: []\n")

// configWithUser is the default configuration with a single SSH user.
func configWithUser(username, password string) ([]byte, error) {
	if !bytes.Contains(defaultConfigData, emptyUsers) {
		return nil, errors.New("default configuration has no users entry")
	}

	users := fmt.Sprintf("  users:\n    - username: %q\n      passwords:\n        - %q\n", username, password)
	return bytes.Replace(defaultConfigData, emptyUsers, []byte(users), 1), nil
}
