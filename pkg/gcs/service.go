package gcs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const publicHost = "storage.googleapis.com"

type GCSClient struct {
	client     *storage.Client
	accessID   string
	privateKey []byte
}

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// NewGCSClient creates a client using application default credentials. When
// credentialsBase64 holds a service-account JSON key, URLs are signed with it.
func NewGCSClient(ctx context.Context, credentialsBase64 string) (*GCSClient, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %v", err)
	}

	g := &GCSClient{client: client}
	if credentialsBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(credentialsBase64)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to decode gcs credentials: %v", err)
		}
		var sa serviceAccount
		if err := json.Unmarshal(raw, &sa); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to parse gcs credentials: %v", err)
		}
		g.accessID = sa.ClientEmail
		g.privateKey = []byte(sa.PrivateKey)
	}
	return g, nil
}

// SplitObjectURL accepts gs://bucket/path or https://storage.googleapis.com/bucket/path.
func SplitObjectURL(raw string) (bucket, object string, err error) {
	var rest string
	switch {
	case strings.HasPrefix(raw, "gs://"):
		rest = strings.TrimPrefix(raw, "gs://")
	default:
		u, perr := url.Parse(raw)
		if perr != nil || u.Host != publicHost {
			return "", "", fmt.Errorf("invalid GCS URL format: %s", raw)
		}
		rest = strings.TrimPrefix(u.Path, "/")
	}

	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", fmt.Errorf("invalid GCS URL format, no object path: %s", raw)
	}
	return rest[:slash], rest[slash+1:], nil
}

// GetPresignedURL returns a V4 signed GET URL for the object.
func (g *GCSClient) GetPresignedURL(ctx context.Context, objectURL string, expiresAt time.Time) (string, error) {
	bucket, object, err := SplitObjectURL(objectURL)
	if err != nil {
		return "", err
	}

	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        expiresAt,
		GoogleAccessID: g.accessID,
		PrivateKey:     g.privateKey,
	}

	signed, err := g.client.Bucket(bucket).SignedURL(object, opts)
	if err != nil {
		return "", fmt.Errorf("failed to get presigned url: %v", err)
	}
	return signed, nil
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}
