package keystore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog/log"
)

// SSMConfig configures the Parameter Store backend
type SSMConfig struct {
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	KMSKeyID string `yaml:"kms_key_id"`
}

// ssmAPI is the subset of the SSM client the store uses
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, in *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
	GetParametersByPath(ctx context.Context, in *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMStore keeps items as SecureString parameters in AWS Systems Manager
// Parameter Store. Items leave the device by definition, so device-only
// writes are refused.
type SSMStore struct {
	client   ssmAPI
	prefix   string
	kmsKeyID string
}

// NewSSMStore creates a Parameter Store backed keystore
func NewSSMStore(ctx context.Context, cfg SSMConfig) (*SSMStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSSMStore(ssm.NewFromConfig(awsCfg), cfg), nil
}

func newSSMStore(client ssmAPI, cfg SSMConfig) *SSMStore {
	prefix := "/" + strings.Trim(cfg.Prefix, "/")
	if prefix == "/" {
		prefix = "/vault"
	}
	return &SSMStore{
		client:   client,
		prefix:   prefix,
		kmsKeyID: cfg.KMSKeyID,
	}
}

func (s *SSMStore) GetItem(ctx context.Context, key string) (string, error) {
	name := s.parameterName(key)
	log.Debug().Str("parameter", name).Msg("SSM GET")

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("SSM GetParameter failed: %w", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", ErrNotFound
	}
	return *out.Parameter.Value, nil
}

func (s *SSMStore) SetItem(ctx context.Context, key, value string, policy *AccessPolicy) error {
	if deviceOnly(policy) {
		return fmt.Errorf("%w: %s is device-only", ErrPolicyUnsupported, key)
	}

	name := s.parameterName(key)
	log.Debug().Str("parameter", name).Int("size", len(value)).Msg("SSM PUT")

	in := &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	}
	if s.kmsKeyID != "" {
		in.KeyId = aws.String(s.kmsKeyID)
	}
	if _, err := s.client.PutParameter(ctx, in); err != nil {
		return fmt.Errorf("SSM PutParameter failed: %w", err)
	}
	return nil
}

func (s *SSMStore) DeleteItem(ctx context.Context, key string) error {
	name := s.parameterName(key)
	log.Debug().Str("parameter", name).Msg("SSM DELETE")

	_, err := s.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("SSM DeleteParameter failed: %w", err)
	}
	return nil
}

// ListKeys implements Lister by walking every parameter under the prefix.
// Values are not decrypted.
func (s *SSMStore) ListKeys(ctx context.Context) ([]string, error) {
	log.Debug().Str("path", s.prefix).Msg("SSM LIST")

	var keys []string
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(s.prefix),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(false),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("SSM GetParametersByPath failed: %w", err)
		}
		for _, p := range page.Parameters {
			if key, ok := s.keyName(aws.ToString(p.Name)); ok {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

// keyName inverts parameterName
func (s *SSMStore) keyName(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, s.prefix+"/")
	if !ok {
		return "", false
	}
	switch {
	case strings.HasPrefix(rest, "k/"):
		return rest[2:], true
	case strings.HasPrefix(rest, "x/"):
		raw, err := hex.DecodeString(rest[2:])
		if err != nil {
			return "", false
		}
		return string(raw), true
	default:
		return "", false
	}
}

// parameterName maps a key onto the Parameter Store name alphabet. Keys
// that already fit live under {prefix}/k/, anything else is hex-encoded
// under {prefix}/x/ so the mapping stays injective.
func (s *SSMStore) parameterName(key string) string {
	if plainName(key) {
		return s.prefix + "/k/" + key
	}
	return s.prefix + "/x/" + hex.EncodeToString([]byte(key))
}

func plainName(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}
