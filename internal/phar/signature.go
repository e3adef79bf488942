package phar

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
)

// SignatureAlgorithm identifies the hash recorded in the archive footer.
// Values are the flags PHP's phar extension writes before the GBMB magic.
type SignatureAlgorithm uint32

const (
	MD5    SignatureAlgorithm = 0x0001
	SHA1   SignatureAlgorithm = 0x0002
	SHA256 SignatureAlgorithm = 0x0003
	SHA512 SignatureAlgorithm = 0x0004
)

var signatureNames = map[string]SignatureAlgorithm{
	"md5":    MD5,
	"sha1":   SHA1,
	"sha256": SHA256,
	"sha512": SHA512,
}

// ParseSignatureAlgorithm accepts md5, sha1, sha256 or sha512 in any case,
// with or without a dash (SHA-256).
func ParseSignatureAlgorithm(name string) (SignatureAlgorithm, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "")
	if alg, ok := signatureNames[key]; ok {
		return alg, nil
	}

	return 0, fmt.Errorf("unsupported signature algorithm %q (want md5, sha1, sha256 or sha512)", name)
}

func (a SignatureAlgorithm) String() string {
	switch a {
	case MD5:
		return "MD5"
	case SHA1:
		return "SHA-1"
	case SHA256:
		return "SHA-256"
	case SHA512:
		return "SHA-512"
	default:
		return fmt.Sprintf("unknown(0x%04x)", uint32(a))
	}
}

// Valid reports whether a is one of the supported algorithms
func (a SignatureAlgorithm) Valid() bool {
	return a >= MD5 && a <= SHA512
}

// New returns a fresh hash for the algorithm, or nil if it is unknown
func (a SignatureAlgorithm) New() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	default:
		return nil
	}
}

// Size is the digest length in bytes
func (a SignatureAlgorithm) Size() int {
	switch a {
	case MD5:
		return md5.Size
	case SHA1:
		return sha1.Size
	case SHA256:
		return sha256.Size
	case SHA512:
		return sha512.Size
	default:
		return 0
	}
}
