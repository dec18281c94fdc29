/*
Package security implements secrets-at-rest encryption for hangar:
AES-256-GCM over env var values and database passwords.

The contract is fixed: encrypt(plaintext, 32-byte key) returns
nonce‖ciphertext‖tag, where the 96-bit nonce is freshly sampled from a
cryptographic RNG on every call and never derived from message content.
decrypt(blob, key) fails generically — it never reveals whether the
failure was a too-short blob, a bad key, tampering, or non-UTF-8
plaintext.

# Usage

	sm, err := security.NewSecretsManager(masterKey) // 32 bytes, from config
	encoded, err := sm.EncryptValue("my-db-password")
	plain, err := sm.DecryptValue(encoded)

Env vars are encrypted per-value, not as a single serialized map:

	encrypted, err := sm.EncryptEnvVars(map[string]string{"APP_COLOR": "blue"})

# Key management

The master key is a 32-byte value configured as hex at startup (see
pkg/config); NewSecretsManagerFromPassword derives a key via SHA-256 for
local development and tests where a raw 32-byte key isn't convenient to
hand-author.
*/
package security
