package git

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	crssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/scan-io-git/autofix/pkg/shared/config"
)

func newHostKey(t *testing.T) crssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key, err := crssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("NewPublicKey: %v", err)
	}
	return key
}

func TestHostKeyCallback(t *testing.T) {
	known := newHostKey(t)
	other := newHostKey(t)
	path := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(path, []byte(knownhosts.Line([]string{"git.example.com"}, known)+"\n"), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	remote := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}
	insecure := true

	tests := []struct {
		name      string
		cfg       config.GitClient
		key       crssh.PublicKey
		wantSetup bool
		wantCheck bool
	}{
		{name: "known key", cfg: config.GitClient{KnownHosts: path}, key: known, wantSetup: true, wantCheck: true},
		{name: "unknown key", cfg: config.GitClient{KnownHosts: path}, key: other, wantSetup: true},
		{name: "missing known_hosts", cfg: config.GitClient{KnownHosts: filepath.Join(t.TempDir(), "absent")}},
		{name: "insecure accepts any key", cfg: config.GitClient{KnownHosts: path, InsecureTLS: &insecure}, key: other, wantSetup: true, wantCheck: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callback, err := hostKeyCallback(tt.cfg, hclog.NewNullLogger())
			if !tt.wantSetup {
				if err == nil {
					t.Fatal("expected an error for an unreadable known_hosts file")
				}
				return
			}
			if err != nil {
				t.Fatalf("hostKeyCallback: %v", err)
			}

			err = callback("git.example.com:22", remote, tt.key)
			if tt.wantCheck && err != nil {
				t.Errorf("host key rejected: %v", err)
			}
			if !tt.wantCheck && err == nil {
				t.Error("unknown host key accepted")
			}
		})
	}
}
