package secretmanager

import (
	"fmt"
	"os"
	"time"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

const requestTimeout = 10 * time.Second

// ProvideVault builds the client that feeds directory credentials and the
// tenant vault secret into config. It returns nil when VAULT_ADDR is unset.
func ProvideVault() (*vault.Client, error) {
	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		zap.L().Info("[SecretManager] VAULT_ADDR not set, secrets come from config and environment")
		return nil, nil
	}
	return New(addr, os.Getenv("VAULT_TOKEN"))
}

func New(addr, token string) (*vault.Client, error) {
	client, err := vault.New(
		vault.WithAddress(addr),
		vault.WithRequestTimeout(requestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}

	if token != "" {
		if err := client.SetToken(token); err != nil {
			return nil, fmt.Errorf("vault token: %w", err)
		}
	}

	zap.L().Info("[SecretManager] vault client ready", zap.String("addr", addr))
	return client, nil
}
