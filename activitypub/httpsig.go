package activitypub

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fedipress/fedipress/domain"
)

// HTTP message signatures (draft-cavage), RSA-SHA256 only, plus SHA-256 body
// digests. Wire format matches what Mastodon and friends emit and accept.

// GenerateDigest computes the Digest header value for a request body.
func GenerateDigest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

// VerifyDigest checks a Digest header against the raw body. The header may
// carry several comma-separated entries; the SHA-256 one is used.
func VerifyDigest(body []byte, header string) error {
	if header == "" {
		return domain.SignatureError("missing digest header")
	}

	for _, entry := range strings.Split(header, ",") {
		entry = strings.TrimSpace(entry)
		algo, value, found := strings.Cut(entry, "=")
		if !found || !strings.EqualFold(algo, "SHA-256") {
			continue
		}

		hash := sha256.Sum256(body)
		expected := base64.StdEncoding.EncodeToString(hash[:])
		if subtle.ConstantTimeCompare([]byte(expected), []byte(value)) == 1 {
			return nil
		}
		return domain.SignatureError("digest mismatch")
	}

	return domain.SignatureError("no SHA-256 entry in digest header")
}

// SignatureParams are the four attributes of a Signature header.
type SignatureParams struct {
	KeyId     string
	Algorithm string
	Headers   []string
	Signature string
}

// ParseSignatureHeader parses a Signature header. Returns nil if any of the
// four required attributes is missing or the header is malformed.
func ParseSignatureHeader(header string) *SignatureParams {
	if header == "" {
		return nil
	}
	// Some servers prefix the scheme name from the Authorization variant.
	header = strings.TrimPrefix(strings.TrimSpace(header), "Signature ")

	attrs := make(map[string]string)
	rest := header
	for rest != "" {
		name, after, found := strings.Cut(rest, "=")
		if !found {
			return nil
		}
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), ","))
		if !strings.HasPrefix(after, `"`) {
			return nil
		}
		closing := strings.Index(after[1:], `"`)
		if closing < 0 {
			return nil
		}
		attrs[name] = after[1 : 1+closing]
		rest = strings.TrimPrefix(strings.TrimSpace(after[closing+2:]), ",")
	}

	keyId, hasKey := attrs["keyId"]
	algorithm, hasAlgo := attrs["algorithm"]
	headers, hasHeaders := attrs["headers"]
	signature, hasSig := attrs["signature"]
	if !hasKey || !hasAlgo || !hasHeaders || !hasSig {
		return nil
	}

	return &SignatureParams{
		KeyId:     keyId,
		Algorithm: strings.ToLower(algorithm),
		Headers:   strings.Fields(headers),
		Signature: signature,
	}
}

// Emit renders the header back to its wire form.
func (p *SignatureParams) Emit() string {
	return fmt.Sprintf(`keyId="%s",algorithm="%s",headers="%s",signature="%s"`,
		p.KeyId, p.Algorithm, strings.Join(p.Headers, " "), p.Signature)
}

func supportedAlgorithm(algorithm string) bool {
	return algorithm == "rsa-sha256" || algorithm == "hs2019"
}

// BuildSigningString assembles the canonical string for the listed headers,
// one line per header, joined by \n with no trailing newline.
func BuildSigningString(method string, u *url.URL, headers []string, get func(string) string) string {
	lines := make([]string, 0, len(headers))

	for _, name := range headers {
		lower := strings.ToLower(name)
		switch lower {
		case "(request-target)":
			target := u.Path
			if target == "" {
				target = "/"
			}
			if u.RawQuery != "" {
				target += "?" + u.RawQuery
			}
			lines = append(lines, fmt.Sprintf("(request-target): %s %s", strings.ToLower(method), target))
		case "host":
			host := get("host")
			if host == "" {
				host = u.Host
			}
			lines = append(lines, "host: "+host)
		default:
			lines = append(lines, lower+": "+get(name))
		}
	}

	return strings.Join(lines, "\n")
}

func bodyMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// SignRequest signs an outgoing request in place: computes the digest when a
// body is present, fills Date if the caller didn't, and sets the Signature
// header covering (request-target) host date [digest].
func SignRequest(req *http.Request, privateKeyPem, keyId string, body []byte) error {
	privateKey, err := ParsePrivateKey(privateKeyPem)
	if err != nil {
		return err
	}

	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}

	headers := []string{"(request-target)", "host", "date"}
	if body != nil && bodyMethod(req.Method) {
		if req.Header.Get("Digest") == "" {
			req.Header.Set("Digest", GenerateDigest(body))
		}
		headers = append(headers, "digest")
	}

	signingString := BuildSigningString(req.Method, req.URL, headers, req.Header.Get)

	hashed := sha256.Sum256([]byte(signingString))
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, hashed[:])
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	params := &SignatureParams{
		KeyId:     keyId,
		Algorithm: "rsa-sha256",
		Headers:   headers,
		Signature: base64.StdEncoding.EncodeToString(signature),
	}
	req.Header.Set("Signature", params.Emit())
	return nil
}

// VerifySignatureWithKey checks a parsed Signature header against a public
// key, rebuilding the canonical string from the inbound request's headers.
func VerifySignatureWithKey(params *SignatureParams, method string, u *url.URL, get func(string) string, publicKeyPem string) error {
	publicKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return domain.SignatureError("unusable public key: %v", err)
	}

	signature, err := base64.StdEncoding.DecodeString(params.Signature)
	if err != nil {
		return domain.SignatureError("signature is not valid base64")
	}

	signingString := BuildSigningString(method, u, params.Headers, get)
	hashed := sha256.Sum256([]byte(signingString))

	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, hashed[:], signature); err != nil {
		return domain.SignatureError("signature verification failed")
	}
	return nil
}

// VerifyRequest authenticates an inbound request: parses the Signature
// header, fetches (or recalls) the signer's public key, verifies the
// signature, and when a body is present requires a matching digest.
// Returns the actor URI derived from keyId.
func VerifyRequest(rt *Runtime, req *http.Request, body []byte) (string, error) {
	params := ParseSignatureHeader(req.Header.Get("Signature"))
	if params == nil {
		return "", domain.SignatureError("missing or malformed signature header")
	}

	if !supportedAlgorithm(params.Algorithm) {
		return "", domain.SignatureError("unsupported signature algorithm %q", params.Algorithm)
	}

	publicKeyPem, err := rt.Keys.FetchPublicKey(params.KeyId)
	if err != nil {
		return "", err
	}

	// Server-side requests carry the host in req.Host, not the header map.
	get := func(name string) string {
		if value := req.Header.Get(name); value != "" {
			return value
		}
		if strings.EqualFold(name, "host") {
			return req.Host
		}
		return ""
	}

	if err := VerifySignatureWithKey(params, req.Method, req.URL, get, publicKeyPem); err != nil {
		return "", err
	}

	if len(body) > 0 {
		if err := VerifyDigest(body, req.Header.Get("Digest")); err != nil {
			return "", err
		}
	}

	actorUri := strings.Split(params.KeyId, "#")[0]
	return actorUri, nil
}

// ParsePrivateKey decodes a PEM private key, accepting both PKCS#8 and the
// legacy PKCS#1 form.
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// ParsePublicKey decodes a PEM public key, accepting PKIX and PKCS#1 forms.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
