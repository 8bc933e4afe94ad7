package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// modelObjectGetter is the narrow slice of S3Client the gateway needs: one
// GetObject call at startup. Grounded on pkg/storage/s3.go's S3Client, but
// the gateway only ever reads one object so it does not need the full
// Read/Write/Delete/Exists surface that package exposes.
type modelObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ResolveModelPath returns a local filesystem path for cfg's configured
// model. If the path is an s3://bucket/key URI, the object is downloaded
// once to a temp file and that path is returned instead; otherwise the
// configured path is returned unchanged.
func ResolveModelPath(ctx context.Context, modelPath string) (string, error) {
	bucket, key, ok := parseS3URI(modelPath)
	if !ok {
		return modelPath, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("gateway: load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return fetchModelObject(ctx, client, bucket, key)
}

func fetchModelObject(ctx context.Context, client modelObjectGetter, bucket, key string) (string, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("gateway: fetch s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	f, err := os.CreateTemp("", "a2f-model-*")
	if err != nil {
		return "", fmt.Errorf("gateway: create temp model file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("gateway: download s3://%s/%s: %w", bucket, key, err)
	}
	return f.Name(), nil
}

// parseS3URI splits "s3://bucket/key" into its bucket and key. Returns
// ok=false for anything not starting with "s3://".
func parseS3URI(uri string) (bucket, key string, ok bool) {
	const prefix = "s3://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", false
	}
	rest := uri[len(prefix):]
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
