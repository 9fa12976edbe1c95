package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func (h *Hasher) hashArgon2(password string) (string, error) {
	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	var b strings.Builder
	fmt.Fprintf(&b, "%sv=%d$m=%d,t=%d,p=%d$", argon2Prefix, argon2.Version, h.config.Memory, h.config.Time, h.config.Parallelism)
	b.WriteString(base64.RawStdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(key))
	return b.String(), nil
}

func verifyArgon2(password, encoded string) (bool, error) {
	params, salt, key, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func (h *Hasher) argon2Outdated(encoded string) (bool, error) {
	params, _, key, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}
	return params.memory < h.config.Memory ||
		params.time < h.config.Time ||
		params.threads < h.config.Parallelism ||
		uint32(len(key)) != h.config.KeyLength, nil
}

// decodeArgon2 parses $argon2id$v=19$m=..,t=..,p=..$salt$key with unpadded
// standard base64 fields.
func decodeArgon2(encoded string) (argon2Params, []byte, []byte, error) {
	var params argon2Params

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return params, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return params, nil, nil, ErrMalformedHash
	}
	if version != argon2.Version {
		return params, nil, nil, fmt.Errorf("%w: argon2 version %d", ErrUnsupportedHash, version)
	}

	var memory, time, threads uint64
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil || n != 3 {
		return params, nil, nil, ErrMalformedHash
	}
	if memory < uint64(minMemoryKB) || memory > 1<<32-1 || time < 1 || time > 1<<32-1 || threads < 1 || threads > 255 {
		return params, nil, nil, ErrMalformedHash
	}
	params = argon2Params{memory: uint32(memory), time: uint32(time), threads: uint8(threads)}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil || len(salt) < minSaltLength {
		return params, nil, nil, ErrMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil || len(key) < minKeyLength {
		return params, nil, nil, ErrMalformedHash
	}
	return params, salt, key, nil
}
