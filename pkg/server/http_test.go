package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenant-gateway/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
	zap.ReplaceGlobals(zap.NewNop())
}

func writeCert(t *testing.T, dir, cn string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func TestNewEngineRendersErrors(t *testing.T) {
	cfg := &config.Config{AppEnv: "development"}
	r, err := NewEngine(cfg)
	require.NoError(t, err)

	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	cfg.Server.TrustedProxies = []string{"not-a-cidr"}
	_, err = NewEngine(cfg)
	require.Error(t, err)
}

func TestNewHttpServerLoadsCertificate(t *testing.T) {
	certPath, keyPath := writeCert(t, t.TempDir(), "first")

	cfg := &config.Config{AppName: "tenant-gateway"}
	cfg.Server.Addr = "0"
	cfg.TLS.Enable = true
	cfg.TLS.CertPath = certPath
	cfg.TLS.KeyPath = keyPath

	srv, err := NewHttpServer(Params{Config: cfg, Handler: gin.New()})
	require.NoError(t, err)
	require.NotNil(t, srv.server.TLSConfig)

	cert, err := srv.getCertificate(nil)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	require.Equal(t, "first", leaf.Subject.CommonName)

	writeCert(t, filepath.Dir(certPath), "second")
	require.NoError(t, srv.reloadCert())
	cert, err = srv.getCertificate(nil)
	require.NoError(t, err)
	leaf, err = x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	require.Equal(t, "second", leaf.Subject.CommonName)
}

func TestNewHttpServerPlain(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Addr = "8080"
	srv, err := NewHttpServer(Params{Config: cfg, Handler: gin.New()})
	require.NoError(t, err)
	require.Nil(t, srv.server.TLSConfig)
	require.Equal(t, ":8080", srv.server.Addr)

	_, err = srv.getCertificate(nil)
	require.Error(t, err)

	cfg.Server.Addr = "127.0.0.1:9090"
	srv, err = NewHttpServer(Params{Config: cfg, Handler: gin.New()})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", srv.server.Addr)
}

func TestNewHttpServerMissingCertificate(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Addr = "8443"
	cfg.TLS.Enable = true
	cfg.TLS.CertPath = filepath.Join(t.TempDir(), "missing.crt")
	cfg.TLS.KeyPath = filepath.Join(t.TempDir(), "missing.key")

	_, err := NewHttpServer(Params{Config: cfg, Handler: gin.New()})
	require.Error(t, err)
}

func TestReloadKeepsPreviousCertificate(t *testing.T) {
	certPath, keyPath := writeCert(t, t.TempDir(), "first")
	srv := &Server{certPath: certPath, keyPath: keyPath}
	require.NoError(t, srv.reloadCert())

	require.NoError(t, os.WriteFile(certPath, []byte("garbage"), 0o600))
	require.Error(t, srv.reloadCert())

	cert, err := srv.getCertificate(nil)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	require.Equal(t, "first", leaf.Subject.CommonName)
}
