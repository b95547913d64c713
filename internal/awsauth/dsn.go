// Package awsauth resolves AWS credentials for the Postgres DSN's IAM
// authentication path, mirroring how the reference service's storage
// layer chooses between an explicit profile and the ECS/Fargate task
// role rather than a long-lived password.
package awsauth

import (
	"context"
	"fmt"
	"net/url"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// ResolveToken retrieves the caller identity's current credentials for
// region/profile and returns the session token to embed as the DSN
// password, per RDS's IAM database authentication flow. An empty
// profile means the default credential chain, which resolves to the
// ECS task role when running on Fargate.
func ResolveToken(ctx context.Context, region, profile string) (string, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	if profile != "" {
		optFns = append(optFns, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return "", fmt.Errorf("awsauth: load default config: %w", err)
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("awsauth: retrieve credentials: %w", err)
	}
	if creds.SessionToken == "" {
		return "", fmt.Errorf("awsauth: resolved credentials carry no session token, an IAM role is required")
	}
	return creds.SessionToken, nil
}

// StaticCredentials builds a credentials provider for local development,
// where no IAM role is available and the operator supplies a long-lived
// access key pair instead of assuming the task role.
func StaticCredentials(accessKeyID, secretAccessKey string) credentials.StaticCredentialsProvider {
	return credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
}

// WithToken rewrites dsn's password component to token, leaving every
// other part of the connection string untouched.
func WithToken(dsn, token string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("awsauth: parse dsn: %w", err)
	}
	if u.User == nil {
		return "", fmt.Errorf("awsauth: dsn has no username to pair with the IAM token")
	}
	u.User = url.UserPassword(u.User.Username(), token)
	return u.String(), nil
}
