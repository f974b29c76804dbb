package auth

import (
	"crypto"
	"crypto/rsa"
	"fmt"

	// Register the hash implementations used below
	_ "crypto/sha256"
	_ "crypto/sha512"
)

var signatureHashes = map[string]crypto.Hash{
	"RS256": crypto.SHA256,
	"RS384": crypto.SHA384,
	"RS512": crypto.SHA512,
}

// verify checks a PKCS#1 v1.5 signature made with alg
func verify(alg string, key *rsa.PublicKey, signed, sig []byte) error {
	hash, ok := signatureHashes[alg]
	if !ok {
		return fmt.Errorf("unsupported algorithm: %s", alg)
	}
	h := hash.New()
	h.Write(signed)
	return rsa.VerifyPKCS1v15(key, hash, h.Sum(nil), sig)
}
