package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-paychain/core"
	"github.com/google/uuid"
)

// Every state-changing route except relay delivery is signed by the key the
// request acts for. The signer sends its public key, a unix timestamp, a
// single-use nonce and an ed25519 signature over RequestDigest.
const (
	HeaderSigner    = "X-Paychain-Signer"
	HeaderTimestamp = "X-Paychain-Timestamp"
	HeaderNonce     = "X-Paychain-Nonce"
	HeaderSignature = "X-Paychain-Signature"

	DefaultSignatureSkew = 5 * time.Minute

	maxNonceBytes    = 128
	signerContextKey = "paychain.signer"
)

// RequestDigest is keccak256(method \n request-uri \n timestamp \n nonce \n
// keccak256(body)).
func RequestDigest(method string, requestURI string, timestamp int64, nonce string, body []byte) []byte {
	header := strings.Join([]string{
		strings.ToUpper(method),
		requestURI,
		strconv.FormatInt(timestamp, 10),
		nonce,
	}, "\n") + "\n"
	return crypto.Keccak256([]byte(header), crypto.Keccak256(body))
}

// SignRequest sets the signing headers on req for body, which must be the
// exact bytes req sends.
func SignRequest(req *http.Request, key solana.PrivateKey, body []byte, now time.Time) error {
	if req == nil || req.URL == nil {
		return fmt.Errorf("httpapi: request is required")
	}
	timestamp := now.Unix()
	nonce := uuid.NewString()
	signature, err := key.Sign(RequestDigest(req.Method, req.URL.RequestURI(), timestamp, nonce, body))
	if err != nil {
		return fmt.Errorf("httpapi: sign request: %w", err)
	}
	req.Header.Set(HeaderSigner, key.PublicKey().String())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, signature.String())
	return nil
}

func (s *Server) requireSigner() gin.HandlerFunc {
	return func(c *gin.Context) {
		signer, err := s.verifyRequest(c)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(signerContextKey, signer)
		c.Next()
	}
}

func (s *Server) verifyRequest(c *gin.Context) (solana.PublicKey, error) {
	header := c.Request.Header
	signer, err := solana.PublicKeyFromBase58(strings.TrimSpace(header.Get(HeaderSigner)))
	if err != nil {
		return solana.PublicKey{}, unauthorized("httpapi: "+HeaderSigner+" is missing or invalid", nil)
	}
	timestamp, err := strconv.ParseInt(strings.TrimSpace(header.Get(HeaderTimestamp)), 10, 64)
	if err != nil {
		return solana.PublicKey{}, unauthorized("httpapi: "+HeaderTimestamp+" is missing or invalid", nil)
	}
	now := s.now()
	issuedAt := time.Unix(timestamp, 0)
	if issuedAt.Before(now.Add(-s.signatureSkew)) || issuedAt.After(now.Add(s.signatureSkew)) {
		return solana.PublicKey{}, unauthorized("httpapi: request timestamp is outside the accepted window", map[string]any{
			"signer": signer.String(),
		})
	}
	nonce := strings.TrimSpace(header.Get(HeaderNonce))
	if nonce == "" || len(nonce) > maxNonceBytes {
		return solana.PublicKey{}, unauthorized("httpapi: "+HeaderNonce+" is missing or too long", nil)
	}
	signature, err := solana.SignatureFromBase58(strings.TrimSpace(header.Get(HeaderSignature)))
	if err != nil {
		return solana.PublicKey{}, unauthorized("httpapi: "+HeaderSignature+" is missing or invalid", nil)
	}

	var body []byte
	if c.Request.Body != nil {
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return solana.PublicKey{}, goerrors.New("httpapi: request body too large", goerrors.CategoryBadInput).
					WithCode(http.StatusRequestEntityTooLarge).
					WithTextCode(core.ErrorCodeBadInput)
			}
			return solana.PublicKey{}, badRequest("httpapi: request body could not be read", "body")
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	digest := RequestDigest(c.Request.Method, c.Request.URL.RequestURI(), timestamp, nonce, body)
	if !signature.Verify(signer, digest) {
		return solana.PublicKey{}, unauthorized("httpapi: request signature does not verify", map[string]any{
			"signer": signer.String(),
		})
	}
	fresh, err := s.nonces.Claim(c.Request.Context(), "request:"+signer.String()+":"+nonce, 2*s.signatureSkew)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !fresh {
		return solana.PublicKey{}, unauthorized("httpapi: request nonce was already used", map[string]any{
			"signer": signer.String(),
		})
	}
	return signer, nil
}

func signerFrom(c *gin.Context) solana.PublicKey {
	value, ok := c.Get(signerContextKey)
	if !ok {
		return solana.PublicKey{}
	}
	signer, _ := value.(solana.PublicKey)
	return signer
}

// actAs binds the identity a body names to the request signer. An omitted
// identity defaults to the signer; a different one is refused.
func actAs(c *gin.Context, field string, identity *solana.PublicKey) bool {
	signer := signerFrom(c)
	if signer.IsZero() {
		writeError(c, unauthorized("httpapi: request is not signed", map[string]any{"field": field}))
		return false
	}
	if identity.IsZero() {
		*identity = signer
		return true
	}
	if !identity.Equals(signer) {
		writeError(c, unauthorized("httpapi: "+field+" does not match the request signer", map[string]any{
			"field":  field,
			"signer": signer.String(),
		}))
		return false
	}
	return true
}

// requireAuthority refuses signed requests from anyone but the deployment
// authority.
func (s *Server) requireAuthority(c *gin.Context) bool {
	deployment, err := s.facade.Service().GetDeployment(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return false
	}
	if !deployment.IsAuthority(signerFrom(c)) {
		writeError(c, unauthorized("httpapi: only the deployment authority may do this", nil))
		return false
	}
	return true
}
