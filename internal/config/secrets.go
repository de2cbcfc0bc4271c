package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMParameterStoreClient defines an interface for AWS SSM client
type SSMParameterStoreClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretsManagerClient defines a minimal interface for AWS Secrets Manager
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SaltResolver fetches the masking salt from a managed secret store.
type SaltResolver struct {
	ssm     SSMParameterStoreClient
	secrets SecretsManagerClient
}

// NewSaltResolver returns a resolver over the given clients. Either may be nil
// when the matching source is not configured.
func NewSaltResolver(ssmClient SSMParameterStoreClient, secretsClient SecretsManagerClient) *SaltResolver {
	return &SaltResolver{ssm: ssmClient, secrets: secretsClient}
}

// NewAWSSaltResolver builds SSM and Secrets Manager clients from the default AWS config.
func NewAWSSaltResolver(ctx context.Context, region string) (*SaltResolver, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSaltResolver(ssm.NewFromConfig(cfg), secretsmanager.NewFromConfig(cfg)), nil
}

// ResolveSalt fills cfg.Salt from cfg.SaltRef. It is a no-op for SaltFromEnv.
func (r *SaltResolver) ResolveSalt(ctx context.Context, cfg *Config) error {
	var (
		salt string
		err  error
	)

	switch cfg.SaltSource {
	case SaltFromEnv:
		if cfg.Salt == "" {
			return errors.New("masking salt is empty")
		}
		return nil
	case SaltFromSSM:
		salt, err = r.getParameter(ctx, cfg.SaltRef)
	case SaltFromSecretsManager:
		salt, err = r.getSecret(ctx, cfg.SaltRef)
	default:
		return fmt.Errorf("unknown salt source %q", cfg.SaltSource)
	}
	if err != nil {
		return err
	}
	if salt == "" {
		return fmt.Errorf("masking salt from %s is empty", cfg.SaltSource)
	}

	cfg.Salt = salt
	return nil
}

func (r *SaltResolver) getParameter(ctx context.Context, name string) (string, error) {
	if r.ssm == nil {
		return "", errors.New("ssm client not configured")
	}

	result, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter: %w", err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", errors.New("parameter value is nil")
	}
	return *result.Parameter.Value, nil
}

func (r *SaltResolver) getSecret(ctx context.Context, id string) (string, error) {
	if r.secrets == nil {
		return "", errors.New("secrets manager client not configured")
	}

	result, err := r.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret: %w", err)
	}
	if result.SecretString == nil {
		return "", errors.New("secret value is nil")
	}
	return *result.SecretString, nil
}
