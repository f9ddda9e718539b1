package hyperliquid

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator adds request credentials for the exchange API.
type Authenticator interface {
	AddAuthHeaders(req *http.Request, method, path, body string) error
}

// HMACAuthenticator signs requests with the agent wallet secret using
// the legacy HMAC scheme.
type HMACAuthenticator struct {
	apiWallet string
	apiSecret string
}

func NewHMACAuthenticator(apiWallet, apiSecret string) *HMACAuthenticator {
	return &HMACAuthenticator{
		apiWallet: apiWallet,
		apiSecret: apiSecret,
	}
}

func (a *HMACAuthenticator) AddAuthHeaders(req *http.Request, method, path, body string) error {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signature := a.sign(method, path, body, timestamp)

	req.Header.Set("HL-API-WALLET", a.apiWallet)
	req.Header.Set("HL-SIGNATURE", signature)
	req.Header.Set("HL-TIMESTAMP", timestamp)
	return nil
}

func (a *HMACAuthenticator) sign(method, path, body, timestamp string) string {
	message := timestamp + method + path + body
	h := hmac.New(sha256.New, []byte(a.apiSecret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// WalletAuthenticator signs short-lived ES256 JWTs with the agent
// wallet's EC private key.
type WalletAuthenticator struct {
	apiWallet  string
	privateKey *ecdsa.PrivateKey
}

func NewWalletAuthenticator(apiWallet, privateKeyPEM string) (*WalletAuthenticator, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block containing the private key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC private key: %w", err)
		}
		var ok bool
		privateKey, ok = key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an EC private key")
		}
	}

	return &WalletAuthenticator{
		apiWallet:  apiWallet,
		privateKey: privateKey,
	}, nil
}

func (a *WalletAuthenticator) AddAuthHeaders(req *http.Request, method, path, body string) error {
	token, err := a.generateJWT(method, req.Host, path)
	if err != nil {
		return fmt.Errorf("failed to generate JWT: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("HL-API-WALLET", a.apiWallet)
	return nil
}

func (a *WalletAuthenticator) generateJWT(method, host, path string) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub":   a.apiWallet,
		"nbf":   time.Now().Unix(),
		"exp":   time.Now().Add(2 * time.Minute).Unix(),
		"uri":   method + " " + host + path,
		"nonce": nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["nonce"] = nonce

	tokenString, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
