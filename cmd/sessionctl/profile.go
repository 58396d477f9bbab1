package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ruteri/seal-session/keyserver"
	"gopkg.in/yaml.v3"
)

// Profile is the on-disk sessionctl configuration. Command-line flags
// override every field.
type Profile struct {
	Identity   string        `yaml:"identity"`
	Scope      string        `yaml:"scope"`
	TTLMinutes int           `yaml:"ttl_minutes"`
	Storage    []string      `yaml:"storage,omitempty"`
	KeyServers []string      `yaml:"key_servers,omitempty"`
	Signer     SignerProfile `yaml:"signer"`

	// KeyServerPublicKeys pins hex master public keys by key-server URL.
	// Keys from a pinned server are verified against the pin rather than
	// against the key the server advertises.
	KeyServerPublicKeys map[string]string `yaml:"key_server_public_keys,omitempty"`
}

// SignerProfile selects how the identity wallet signs the attestation message.
type SignerProfile struct {
	// Type is one of "", "private-key", "mnemonic", "keystore" or "rpc".
	Type         string `yaml:"type"`
	KeyFile      string `yaml:"key_file,omitempty"`
	MnemonicFile string `yaml:"mnemonic_file,omitempty"`
	KeystoreFile string `yaml:"keystore_file,omitempty"`
	RPCURL       string `yaml:"rpc_url,omitempty"`
}

var signerTypes = map[string]bool{"": true, "private-key": true, "mnemonic": true, "keystore": true, "rpc": true}

const defaultTTLMinutes = 10

// LoadProfile reads a profile. A missing path yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return &Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile, rejecting unknown keys.
func ParseProfile(data []byte) (*Profile, error) {
	p := &Profile{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks fields that can be checked without network access.
func (p *Profile) Validate() error {
	if !signerTypes[p.Signer.Type] {
		return fmt.Errorf("invalid profile: unknown signer type %q", p.Signer.Type)
	}
	if p.TTLMinutes < 0 {
		return fmt.Errorf("invalid profile: negative ttl_minutes")
	}
	for server, raw := range p.KeyServerPublicKeys {
		if _, err := keyserver.ParseMasterPublicKey(raw); err != nil {
			return fmt.Errorf("invalid profile: key_server_public_keys[%s]: %w", server, err)
		}
	}
	return nil
}

// PinnedPublicKey returns the pinned master public key of server, or nil when
// none is pinned. URLs match regardless of a trailing slash.
func (p *Profile) PinnedPublicKey(server string) ([]byte, error) {
	server = strings.TrimSuffix(server, "/")
	for url, raw := range p.KeyServerPublicKeys {
		if strings.TrimSuffix(url, "/") == server {
			return keyserver.ParseMasterPublicKey(raw)
		}
	}
	return nil, nil
}

// TTL returns the configured TTL or the default.
func (p *Profile) TTL() int {
	if p.TTLMinutes == 0 {
		return defaultTTLMinutes
	}
	return p.TTLMinutes
}

// Save writes the profile as YAML with owner-only permissions.
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
