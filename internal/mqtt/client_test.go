package mqtt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ibs-source/livesync/internal/config"
	"github.com/ibs-source/livesync/internal/log"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(complete bool, err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeConn struct {
	mu          sync.Mutex
	token       mqtt.Token
	published   []published
	connected   bool
	disconnects int
}

func (f *fakeConn) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic, qos, retained, payload.([]byte)})
	if f.token != nil {
		return f.token
	}
	return newToken(true, nil)
}

func (f *fakeConn) IsConnected() bool { return f.connected }

func (f *fakeConn) Disconnect(uint) { f.disconnects++ }

func testConfig() *config.MQTTConfig {
	return &config.MQTTConfig{
		TopicPrefix:       "livesync/",
		QoS:               1,
		Retain:            true,
		WriteTimeout:      time.Second,
		DisconnectTimeout: 250,
	}
}

func TestClient_Publish(t *testing.T) {
	conn := &fakeConn{}
	c := newClient(conn, testConfig(), log.Discard())

	if err := c.Publish(context.Background(), "messageAdded", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(conn.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(conn.published))
	}
	p := conn.published[0]
	if p.topic != "livesync/messageAdded" {
		t.Errorf("topic = %q", p.topic)
	}
	if p.qos != 1 || !p.retained {
		t.Errorf("qos=%d retained=%v", p.qos, p.retained)
	}
	if string(p.payload) != `{"id":"1"}` {
		t.Errorf("payload = %s", p.payload)
	}
}

func TestClient_PublishTokenError(t *testing.T) {
	conn := &fakeConn{token: newToken(true, errors.New("not authorized"))}
	c := newClient(conn, testConfig(), log.Discard())

	err := c.Publish(context.Background(), "settingsUpdated", []byte("{}"))
	if err == nil || !strings.Contains(err.Error(), "not authorized") {
		t.Errorf("expected wrapped token error, got %v", err)
	}
}

func TestClient_PublishTimeout(t *testing.T) {
	conn := &fakeConn{token: newToken(false, nil)}
	cfg := testConfig()
	cfg.WriteTimeout = 20 * time.Millisecond
	c := newClient(conn, cfg, log.Discard())

	err := c.Publish(context.Background(), "settingsUpdated", []byte("{}"))
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestClient_PublishContextCanceled(t *testing.T) {
	conn := &fakeConn{token: newToken(false, nil)}
	c := newClient(conn, testConfig(), log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Publish(ctx, "settingsUpdated", []byte("{}")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClient_Close(t *testing.T) {
	conn := &fakeConn{connected: true}
	c := newClient(conn, testConfig(), log.Discard())

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if conn.disconnects != 1 {
		t.Errorf("expected 1 disconnect, got %d", conn.disconnects)
	}

	conn.connected = false
	_ = c.Close()
	if conn.disconnects != 1 {
		t.Errorf("disconnected twice")
	}
}

func TestClient_Name(t *testing.T) {
	c := newClient(&fakeConn{}, testConfig(), log.Discard())
	if c.Name() != "mqtt" {
		t.Errorf("Name() = %q", c.Name())
	}
	if got := c.Topic("systemStatusChanged"); got != "livesync/systemStatusChanged" {
		t.Errorf("Topic() = %q", got)
	}
}

func TestUniqueClientID(t *testing.T) {
	id := UniqueClientID("livesync")
	if !strings.HasPrefix(id, "livesync-") {
		t.Errorf("id %q lacks base prefix", id)
	}
	if id != UniqueClientID("livesync") {
		t.Errorf("id is not stable within a process")
	}
}

// writeTestCert writes a self-signed certificate and key into dir.
func writeTestCert(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "livesync-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath
}

func TestNewTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeTestCert(t, dir)

	t.Run("defaults", func(t *testing.T) {
		tlsCfg, err := newTLSConfig(&config.MQTTConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tlsCfg.RootCAs != nil || len(tlsCfg.Certificates) != 0 || tlsCfg.InsecureSkipVerify {
			t.Errorf("unexpected TLS config: %+v", tlsCfg)
		}
	})

	t.Run("ca and client cert", func(t *testing.T) {
		tlsCfg, err := newTLSConfig(&config.MQTTConfig{
			CACert:       certPath,
			ClientCert:   certPath,
			ClientKey:    keyPath,
			InsecureSkip: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tlsCfg.RootCAs == nil {
			t.Error("RootCAs not set")
		}
		if len(tlsCfg.Certificates) != 1 {
			t.Errorf("expected 1 certificate, got %d", len(tlsCfg.Certificates))
		}
		if !tlsCfg.InsecureSkipVerify {
			t.Error("InsecureSkipVerify not propagated")
		}
	})

	t.Run("missing ca", func(t *testing.T) {
		_, err := newTLSConfig(&config.MQTTConfig{CACert: filepath.Join(dir, "nope.pem")})
		if err == nil || !strings.Contains(err.Error(), "failed to read CA cert") {
			t.Errorf("expected read error, got %v", err)
		}
	})

	t.Run("invalid ca", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.pem")
		if err := os.WriteFile(bad, []byte("not a cert"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := newTLSConfig(&config.MQTTConfig{CACert: bad})
		if err == nil || !strings.Contains(err.Error(), "failed to parse CA cert") {
			t.Errorf("expected parse error, got %v", err)
		}
	})

	t.Run("bad key pair", func(t *testing.T) {
		_, err := newTLSConfig(&config.MQTTConfig{ClientCert: certPath, ClientKey: certPath})
		if err == nil || !strings.Contains(err.Error(), "failed to load client cert/key") {
			t.Errorf("expected key pair error, got %v", err)
		}
	})
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Broker = "tcp://127.0.0.1:1"
	cfg.ClientID = "livesync-test"
	cfg.ConnectTimeout = 500 * time.Millisecond

	if _, err := NewClient(cfg, log.Discard()); err == nil {
		t.Fatal("expected connect error")
	}
}
