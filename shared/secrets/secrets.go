// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets resolves credentials such as LLM and search API keys
// from AWS Secrets Manager or from prefixed environment variables.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Resolver fetches a secret as a flat map of fields.
type Resolver interface {
	GetSecret(ctx context.Context, id string) (map[string]string, error)
}

// SecretsAPI is the part of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSResolver reads secrets from AWS Secrets Manager with a TTL cache.
type AWSResolver struct {
	client SecretsAPI
	ttl    time.Duration
	logger *log.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSOptions configures NewAWSResolver.
type AWSOptions struct {
	Region   string
	CacheTTL time.Duration
}

// NewAWSResolver loads the default AWS configuration.
func NewAWSResolver(ctx context.Context, opts AWSOptions) (*AWSResolver, error) {
	var cfgOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSResolverWithClient(secretsmanager.NewFromConfig(cfg), opts.CacheTTL), nil
}

// NewAWSResolverWithClient wraps an existing client. ttl defaults to 5m.
func NewAWSResolverWithClient(client SecretsAPI, ttl time.Duration) *AWSResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSResolver{
		client: client,
		ttl:    ttl,
		logger: log.New(os.Stdout, "[SECRETS] ", log.LstdFlags),
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

// GetSecret implements Resolver. A secret string that is not a JSON
// object is returned under the key "value".
func (r *AWSResolver) GetSecret(ctx context.Context, arn string) (map[string]string, error) {
	r.mu.RLock()
	entry, ok := r.cache[arn]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	r.logger.Printf("Fetching secret %s", maskARN(arn))
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(arn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(arn), err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(arn))
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		fields = map[string]string{"value": *out.SecretString}
	}

	r.mu.Lock()
	r.cache[arn] = cacheEntry{value: fields, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return fields, nil
}

// Resolve returns one field of a secret. When field is absent it falls
// back to "api_key", then "value", then the only field of a one-field
// secret.
func (r *AWSResolver) Resolve(ctx context.Context, arn, field string) (string, error) {
	fields, err := r.GetSecret(ctx, arn)
	if err != nil {
		return "", err
	}
	return pick(fields, field, maskARN(arn))
}

// Invalidate drops a cached secret.
func (r *AWSResolver) Invalidate(arn string) {
	r.mu.Lock()
	delete(r.cache, arn)
	r.mu.Unlock()
}

// EnvResolver treats a secret id as an environment variable prefix:
// id "SERPER" yields SERPER_API_KEY as "api_key", SERPER_TOKEN as
// "token" and so on.
type EnvResolver struct{}

var envFields = []string{"API_KEY", "API_SECRET", "TOKEN", "USERNAME", "PASSWORD", "CLIENT_ID", "CLIENT_SECRET"}

// GetSecret implements Resolver.
func (EnvResolver) GetSecret(_ context.Context, prefix string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, f := range envFields {
		if v := os.Getenv(prefix + "_" + f); v != "" {
			fields[strings.ToLower(f)] = v
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", prefix)
	}
	return fields, nil
}

// Lookup resolves a credential from the environment. A non-empty
// valueKey variable wins. Otherwise idKey names a secret: an ARN goes to
// awsResolver, anything else is an EnvResolver prefix. Nothing set
// yields "" and no error.
func Lookup(ctx context.Context, awsResolver Resolver, valueKey, idKey, field string) (string, error) {
	if v := os.Getenv(valueKey); v != "" {
		return v, nil
	}
	id := os.Getenv(idKey)
	if id == "" {
		return "", nil
	}

	var r Resolver = EnvResolver{}
	if strings.HasPrefix(id, "arn:") {
		if awsResolver == nil {
			return "", fmt.Errorf("%s is an ARN but AWS Secrets Manager is not available", idKey)
		}
		r = awsResolver
	}
	fields, err := r.GetSecret(ctx, id)
	if err != nil {
		return "", err
	}
	return pick(fields, field, maskARN(id))
}

func pick(fields map[string]string, field, label string) (string, error) {
	for _, k := range []string{field, "api_key", "value"} {
		if k == "" {
			continue
		}
		if v, ok := fields[k]; ok && v != "" {
			return v, nil
		}
	}
	if len(fields) == 1 {
		for _, v := range fields {
			return v, nil
		}
	}
	return "", fmt.Errorf("secret %s has no field %q", label, field)
}

// maskARN masks the secret ARN for logging (shows only last 8 characters)
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}
