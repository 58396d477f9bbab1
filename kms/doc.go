// Package kms guards the key server's master secret with Shamir's Secret Sharing.
//
// The master secret is split into shares once, each share handed to an
// administrator, and the secret erased. At startup the key server collects
// signed shares until the threshold is met, reconstructs the secret in memory
// and only then builds its key extractor.
//
// Each administrator is identified by an Ethereum address and proves
// possession of a share with a personal_sign signature over ShareMessage.
// Any interfaces.Signer can produce it, so shares can be signed with a
// keystore file, a mnemonic or a connected wallet.
//
// When the expected master public key is configured, a reconstruction that
// does not reproduce it is rejected and the collected shares are discarded.
//
//	parts, err := kms.SplitMasterKey(masterKey, 5, 3)
//	// distribute parts[i] to admin i; each admin runs:
//	signed, err := kms.SignShare(ctx, parts[i], adminSigner)
//
//	recovery, err := kms.NewShamirKMSRecovery(kms.ShamirConfig{
//	    Threshold:       3,
//	    Admins:          admins,
//	    MasterPublicKey: mpk,
//	})
//	for _, s := range signedShares {
//	    if err := recovery.SubmitShare(s); err != nil { ... }
//	}
//	extractor, err := recovery.Extractor()
package kms
