// Package mirror implements pluggable public-mirror endpoint kinds for
// the fetch orchestrator's fallback candidate list.
//
// Besides HTTP hub-compatible mirrors (hf-mirror.com, huggingface.co),
// two cloud-storage-backed kinds exist for deployments that mirror hub
// repos into a private bucket rather than exposing an HTTP hub endpoint:
// S3 and Azure Blob Storage. Backend selection is by URL scheme in
// configuration ("https://", "s3://", "azblob://").
package mirror

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hfmc/hfmc-go/internal/httpclient"
)

// Backend is a single fetch/etag candidate endpoint.
type Backend interface {
	// String identifies the backend for logging, e.g. "https://hf-mirror.com".
	String() string
	// Fetch streams (repoID, revision, file) into dst.
	Fetch(ctx context.Context, repoID, revision, file string, dst io.Writer) error
	// Etag returns the content identity for (repoID, revision, file), if
	// the backend kind can report one.
	Etag(ctx context.Context, repoID, revision, file string) (string, bool)
}

// New builds a Backend from an endpoint URL. HTTP(S) URLs use the
// hub-compatible wire protocol via internal/httpclient; "s3://bucket"
// and "azblob://account@container" URLs use their respective cloud SDKs.
func New(endpoint string) (Backend, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return httpBackend{endpoint: endpoint}, nil
	case "s3":
		return newS3Backend(u)
	case "azblob":
		return newAzureBackend(u)
	default:
		return nil, fmt.Errorf("mirror: unsupported endpoint scheme %q", u.Scheme)
	}
}

// httpBackend delegates to the same wire protocol a peer serves.
type httpBackend struct{ endpoint string }

func (h httpBackend) String() string { return h.endpoint }

func (h httpBackend) Fetch(ctx context.Context, repoID, revision, file string, dst io.Writer) error {
	return httpclient.FetchFile(ctx, h.endpoint, repoID, revision, file, dst)
}

func (h httpBackend) Etag(ctx context.Context, repoID, revision, file string) (string, bool) {
	return httpclient.GetFileEtag(ctx, h.endpoint, repoID, revision, file)
}

// s3Backend fetches objects stored at key = "<repoID>/<revision>/<file>"
// in a configured bucket.
type s3Backend struct {
	bucket string
	client *s3.Client
}

func newS3Backend(u *url.URL) (Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, err
	}
	return s3Backend{bucket: u.Host, client: s3.NewFromConfig(cfg)}, nil
}

func (b s3Backend) String() string { return "s3://" + b.bucket }

func objectKey(repoID, revision, file string) string {
	return strings.Join([]string{repoID, revision, file}, "/")
}

func (b s3Backend) Fetch(ctx context.Context, repoID, revision, file string, dst io.Writer) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(repoID, revision, file)),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()
	_, err = io.Copy(dst, out.Body)
	return err
}

func (b s3Backend) Etag(ctx context.Context, repoID, revision, file string) (string, bool) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(repoID, revision, file)),
	})
	if err != nil || out.ETag == nil {
		return "", false
	}
	return strings.Trim(*out.ETag, `"`), true
}

// azureBackend fetches blobs from a container, addressed the same way as
// the S3 backend (repoID/revision/file as blob name).
type azureBackend struct {
	containerURL azblob.ContainerURL
}

func newAzureBackend(u *url.URL) (Backend, error) {
	account := u.User.Username()
	container := u.Host

	credential := azblob.NewAnonymousCredential()
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	containerURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", account, container))
	if err != nil {
		return nil, err
	}
	return azureBackend{containerURL: azblob.NewContainerURL(*containerURL, pipeline)}, nil
}

func (b azureBackend) String() string {
	u := b.containerURL.URL()
	return u.String()
}

func (b azureBackend) Fetch(ctx context.Context, repoID, revision, file string, dst io.Writer) error {
	blobURL := b.containerURL.NewBlobURL(objectKey(repoID, revision, file))
	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return err
	}
	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()
	_, err = io.Copy(dst, body)
	return err
}

func (b azureBackend) Etag(ctx context.Context, repoID, revision, file string) (string, bool) {
	blobURL := b.containerURL.NewBlobURL(objectKey(repoID, revision, file))
	props, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return "", false
	}
	return strings.Trim(string(props.ETag()), `"`), true
}
