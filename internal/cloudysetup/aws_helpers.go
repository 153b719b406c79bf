package cloudysetup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// DefaultRegion is used when neither the config nor the caller names one.
const DefaultRegion = "us-east-1"

// loadAWSConfig builds an aws.Config for one call. Explicit credentials are
// used verbatim; otherwise the default credential chain applies.
func loadAWSConfig(ctx context.Context, region string, creds Credentials) (aws.Config, error) {
	if region == "" {
		region = DefaultRegion
	}
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if !creds.IsZero() {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

// awsErrorDetails extracts the API error code, message and HTTP status from
// an SDK error. Non-API errors yield an empty code and the plain message.
func awsErrorDetails(err error) (code, message string, status int) {
	if err == nil {
		return "", "", 0
	}
	message = err.Error()
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
		if m := apiErr.ErrorMessage(); m != "" {
			message = m
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}
	return code, message, status
}

// isNotFound reports whether err says a resource or request token does not
// exist. Cloud Control reports these with a 400 status; a missing resource
// type (TypeNotFoundException) is a configuration error instead.
func isNotFound(err error) bool {
	code, _, status := awsErrorDetails(err)
	switch code {
	case "ResourceNotFoundException", "RequestTokenNotFoundException", "NotFound", "NoSuchKey":
		return true
	}
	return status == 404
}

// splitS3URI splits "s3://bucket/key" into bucket and key.
func splitS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
