// Package main (cmd/sessionctl) manages session keys from the command line.
//
// A session is created for an identity wallet and a package scope, certified
// once with a personal_sign signature from the wallet, and then used to sign
// key requests without prompting the wallet again until it expires. Sessions
// are stored sealed under a passphrase in file://, s3:// or vault:// storage.
//
// Configuration comes from a YAML profile (default sessionctl.yaml) and flags:
//
//	identity: "0x..."
//	scope: "0x..."
//	ttl_minutes: 10
//	storage: ["file:///home/user/.seal-session"]
//	key_servers: ["https://ks1.example.com"]
//	key_server_public_keys:  # optional pins, see "seal-keyserver generate-key"
//	  https://ks1.example.com: "0x..."
//	signer:
//	  type: rpc            # private-key | mnemonic | keystore | rpc
//	  rpc_url: http://127.0.0.1:8545
//
// Example usage:
//
//	export SEAL_PASSPHRASE=...
//	sessionctl new
//	sessionctl certify --signature 0x...   # when signing outside sessionctl
//	sessionctl request --key-id 0x0101...01 --require-pinned
//
// Keys returned by a server with a pinned public key are verified against the
// pin; otherwise against the key the server itself advertises.
package main
