// Package security implements the cryptographic edge of the wallet: sealing
// cleartext payment instruments under the onboarding service's public key,
// and wiping secrets once they have been fed to the engine.
package security
