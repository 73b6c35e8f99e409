package secrets

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// historical key material, kept so existing credential files keep
// decoding. this is obfuscation against shoulder-surfing, not
// cryptography.
const defaultKey = "doireallywanttostorecredslikethis"

type credentialsFile struct {
	Username string `json:"username"`
	// base64 of the password XORed with the key
	Password string `json:"password"`
	Key      string `json:"key"`
}

type Credentials struct {
	Username string
	Password string
}

func xorBytes(data, key []byte) []byte {
	n := len(data)
	if len(key) < n {
		n = len(key)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = data[i] ^ key[i]
	}
	return out
}

// Encode obfuscates a plaintext password into the stored form.
// Only used by tooling that writes credential files.
func Encode(password, key string) string {
	if key == "" {
		key = defaultKey
	}
	return base64.StdEncoding.EncodeToString(xorBytes([]byte(password), []byte(key)))
}

func Load(path string) (Credentials, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, err
	}

	var file credentialsFile
	err = json.Unmarshal(contents, &file)
	if err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	if file.Username == "" {
		return Credentials{}, fmt.Errorf("credentials file %q has no username", path)
	}

	key := file.Key
	if key == "" {
		key = defaultKey
	}
	blob, err := base64.StdEncoding.DecodeString(file.Password)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode password: %w", err)
	}

	return Credentials{
		Username: file.Username,
		Password: string(xorBytes(blob, []byte(key))),
	}, nil
}
