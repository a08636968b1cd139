// Package wallet is the signing capability the pipeline is given by its host.
//
// The pipeline only ever sees the Wallet interface: an identity and a way to
// sign bytes. Identities are opaque strings of the form
// "<scheme>:<base64 public key>"; supported schemes are ed25519 and
// dilithium3.
//
// KeyStore is a local, file-backed source of wallets used by the command line
// tools. It is not a custody solution: seeds are stored as hex in 0600 files.
package wallet
