// Package keys implements the public key cryptography used to authenticate
// masternodes.
//
// A masternode owns a cryptographic key-pair that it uses to sign queues,
// governance objects, governance votes and final-transaction broadcasts. The
// private key is secret; the public key is resolved from the masternode's
// staked outpoint by the host registry and used by peers to verify signed
// artifacts.
//
// Masternode keys use elliptic curve cryptography (ECDSA) over the secp256k1
// curve, the same curve as the host chain itself, via btcsuite's btcec.
package keys
