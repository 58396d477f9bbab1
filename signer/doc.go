// Package signer provides interfaces.Signer implementations for wallet identities.
//
// PrivateKeySigner covers keys held in process: raw hex keys, BIP-39 mnemonics
// and go-ethereum keystore files. RPCSigner forwards personal_sign to an
// external wallet over JSON-RPC and may block until the holder responds.
package signer
