package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	logger    *logrus.Logger
}

func NewGCPSecretManager(ctx context.Context, projectID, credentialsFile string, logger *logrus.Logger) (*GCPSecretManager, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

func (g *GCPSecretManager) GetSecret(ctx context.Context, secretName string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, secretName)

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	}

	result, err := g.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretName, err)
	}

	return string(result.Payload.Data), nil
}

func (g *GCPSecretManager) GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string {
	value, err := g.GetSecret(ctx, secretName)
	if err != nil {
		g.logger.WithError(err).WithField("secret", secretName).Debug("Failed to get secret, using default")
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// SecretNames maps the wallet credentials to their Secret Manager names.
type SecretNames struct {
	APIWallet        string `mapstructure:"api_wallet"`
	APIWalletPrivate string `mapstructure:"api_wallet_private"`
	MainWallet       string `mapstructure:"main_wallet"`
}

func DefaultSecretNames() SecretNames {
	return SecretNames{
		APIWallet:        "hyperliquid-api-wallet",
		APIWalletPrivate: "hyperliquid-api-wallet-private",
		MainWallet:       "hyperliquid-main-wallet",
	}
}
