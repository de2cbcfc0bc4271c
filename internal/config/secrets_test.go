package config

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	value *string
	err   error
	in    *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: f.value}}, nil
}

type fakeSecrets struct {
	value *string
	err   error
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestResolveSalt_Env(t *testing.T) {
	r := NewSaltResolver(nil, nil)

	cfg := &Config{SaltSource: SaltFromEnv, Salt: "s"}
	require.NoError(t, r.ResolveSalt(context.Background(), cfg))
	assert.Equal(t, "s", cfg.Salt)

	cfg = &Config{SaltSource: SaltFromEnv}
	assert.Error(t, r.ResolveSalt(context.Background(), cfg))
}

func TestResolveSalt_SSM(t *testing.T) {
	f := &fakeSSM{value: aws.String("from-ssm")}
	r := NewSaltResolver(f, nil)

	cfg := &Config{SaltSource: SaltFromSSM, SaltRef: "/pipeline/salt"}
	require.NoError(t, r.ResolveSalt(context.Background(), cfg))

	assert.Equal(t, "from-ssm", cfg.Salt)
	assert.Equal(t, "/pipeline/salt", aws.ToString(f.in.Name))
	assert.True(t, aws.ToBool(f.in.WithDecryption))
}

func TestResolveSalt_SSMErrors(t *testing.T) {
	cfg := &Config{SaltSource: SaltFromSSM, SaltRef: "/p"}

	assert.Error(t, NewSaltResolver(nil, nil).ResolveSalt(context.Background(), cfg))
	assert.Error(t, NewSaltResolver(&fakeSSM{err: errors.New("denied")}, nil).ResolveSalt(context.Background(), cfg))
	assert.Error(t, NewSaltResolver(&fakeSSM{}, nil).ResolveSalt(context.Background(), cfg))
	assert.Error(t, NewSaltResolver(&fakeSSM{value: aws.String("")}, nil).ResolveSalt(context.Background(), cfg))
}

func TestResolveSalt_SecretsManager(t *testing.T) {
	r := NewSaltResolver(nil, &fakeSecrets{value: aws.String("from-sm")})

	cfg := &Config{SaltSource: SaltFromSecretsManager, SaltRef: "pipeline-salt"}
	require.NoError(t, r.ResolveSalt(context.Background(), cfg))
	assert.Equal(t, "from-sm", cfg.Salt)

	r = NewSaltResolver(nil, &fakeSecrets{})
	cfg = &Config{SaltSource: SaltFromSecretsManager, SaltRef: "pipeline-salt"}
	assert.Error(t, r.ResolveSalt(context.Background(), cfg))
}
