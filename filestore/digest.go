package filestore

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// DigestAlgorithm names the message digest recorded for stored files.
type DigestAlgorithm string

const (
	DigestNone   DigestAlgorithm = ""
	DigestMD5    DigestAlgorithm = "MD5"
	DigestSHA1   DigestAlgorithm = "SHA-1"
	DigestSHA256 DigestAlgorithm = "SHA-256"
	DigestSHA512 DigestAlgorithm = "SHA-512"
)

// ParseDigestAlgorithm accepts the algorithm names above, case-insensitively.
// "NONE" and the empty string disable digests.
func ParseDigestAlgorithm(s string) (DigestAlgorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return DigestNone, nil
	case "MD5":
		return DigestMD5, nil
	case "SHA-1", "SHA1":
		return DigestSHA1, nil
	case "SHA-256", "SHA256":
		return DigestSHA256, nil
	case "SHA-512", "SHA512":
		return DigestSHA512, nil
	}
	return DigestNone, fmt.Errorf("unsupported digest algorithm %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *DigestAlgorithm) UnmarshalText(text []byte) error {
	v, err := ParseDigestAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a DigestAlgorithm) newHash() hash.Hash {
	switch a {
	case DigestMD5:
		return md5.New()
	case DigestSHA1:
		return sha1.New()
	case DigestSHA256:
		return sha256.New()
	case DigestSHA512:
		return sha512.New()
	}
	return nil
}

// Sum returns the hex digest of r, or nil when digests are disabled.
func (a DigestAlgorithm) Sum(r io.Reader) (*string, error) {
	h := a.newHash()
	if h == nil {
		return nil, nil
	}
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return &sum, nil
}

// SumFile is Sum over the contents of path.
func (a DigestAlgorithm) SumFile(path string) (*string, error) {
	if a == DigestNone {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.Sum(f)
}
