// Package storage persists sealed session exports behind pluggable backends.
//
// A SessionStore seals the output of sessionkey.ExportedSessionKey.MarshalSensitive
// with a passphrase (Argon2id + AES-GCM, see cryptoutils.SealWithPassphrase)
// before handing the ciphertext to a backend. Backends never see plaintext
// session secrets. The session id is bound into the ciphertext as associated
// data, so a blob moved to another id fails to open.
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/seal-session/
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=minio.local:9000
//   - vault://[TOKEN@]vault.example.com:8200/secret/seal-session?insecure=true
//
// # Vault Storage
//
// The VaultBackend uses the KV v2 secret engine with path format
// {mount}/data/{path}/{session_id}. Content is stored base64 encoded under the
// "content" key. Deleting removes all versions through the metadata path.
//
// # Multi-Backend Example
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend([]string{
//	    "file:///var/lib/seal-session/",
//	    "vault://vault.example.com:8200/secret/seal-session",
//	})
//	if err != nil {
//	    return err
//	}
//	store := storage.NewSessionStore(backend, logger)
//	id, err := store.Save(ctx, sk.Export(), passphrase)
package storage
