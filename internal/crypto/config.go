package crypto

import "fmt"

// EncryptAppPassword encrypts a SendEmail node's app_password parameter
// before it is persisted in a workflow's graph. If key is nil, the value
// is returned unchanged (encryption disabled).
func EncryptAppPassword(appPassword string, key []byte) (string, error) {
	if key == nil {
		return appPassword, nil
	}

	enc, err := Encrypt(appPassword, key)
	if err != nil {
		return "", fmt.Errorf("encrypt app_password: %w", err)
	}

	return enc, nil
}

// DecryptAppPassword reverses EncryptAppPassword. Values without the
// "enc:" prefix are returned unchanged (legacy plaintext passthrough).
func DecryptAppPassword(appPassword string, key []byte) (string, error) {
	if key == nil {
		return appPassword, nil
	}

	dec, err := Decrypt(appPassword, key)
	if err != nil {
		return "", fmt.Errorf("decrypt app_password: %w", err)
	}

	return dec, nil
}
