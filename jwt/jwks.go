package jwtkit

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"sort"
	"sync"
)

// JWK minimal fields for RSA public keys.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// RSAPublicToJWK converts an RSA public key to a JWK.
func RSAPublicToJWK(pub *rsa.PublicKey, kid, alg string) JWK {
	n := base64URLEncode(pub.N)
	e := base64URLEncode(big.NewInt(int64(pub.E)))
	return JWK{Kty: "RSA", Use: "sig", Kid: kid, Alg: alg, N: n, E: e}
}

// ServeJWKS writes JWKS JSON to the ResponseWriter.
func ServeJWKS(w http.ResponseWriter, r *http.Request, ks JWKS) {
	// Marshal first to compute a stable ETag and set cache headers
	b, _ := json.Marshal(ks)
	sum := sha256.Sum256(b)
	etag := "\"" + hex.EncodeToString(sum[:]) + "\""

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	w.Header().Set("ETag", etag)
	_, _ = w.Write(b)
}

func base64URLEncode(i *big.Int) string {
	b := i.Bytes()
	for len(b) > 0 && b[0] == 0x00 {
		b = b[1:]
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// KeyRing holds the active signer plus previously published public keys, the
// way an identity provider keeps old keys in its JWKS during rotation.
type KeyRing struct {
	mu     sync.RWMutex
	active *RSASigner
	pubs   map[string]*rsa.PublicKey
}

// NewKeyRing generates a 2048-bit RSA key published under kid.
func NewKeyRing(kid string) (*KeyRing, error) {
	signer, err := NewRSASigner(2048, kid)
	if err != nil {
		return nil, err
	}
	return &KeyRing{
		active: signer,
		pubs:   map[string]*rsa.PublicKey{kid: signer.PublicKey()},
	}, nil
}

// ActiveSigner returns the signer new tokens are issued with.
func (r *KeyRing) ActiveSigner() *RSASigner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// PublicKeys returns a copy of every published key by kid.
func (r *KeyRing) PublicKeys() map[string]*rsa.PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*rsa.PublicKey, len(r.pubs))
	for k, v := range r.pubs {
		out[k] = v
	}
	return out
}

// Rotate makes a fresh key active. When retire is true the previous key is
// withdrawn from the published set.
func (r *KeyRing) Rotate(kid string, retire bool) (*RSASigner, error) {
	signer, err := NewRSASigner(2048, kid)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if retire && r.active != nil {
		delete(r.pubs, r.active.KID())
	}
	r.active = signer
	r.pubs[kid] = signer.PublicKey()
	return signer, nil
}

// JWKS renders the published keys, ordered by kid so the ETag is stable.
func (r *KeyRing) JWKS() JWKS {
	pubs := r.PublicKeys()
	kids := make([]string, 0, len(pubs))
	for kid := range pubs {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	ks := JWKS{Keys: make([]JWK, 0, len(kids))}
	for _, kid := range kids {
		ks.Keys = append(ks.Keys, RSAPublicToJWK(pubs[kid], kid, "RS256"))
	}
	return ks
}
