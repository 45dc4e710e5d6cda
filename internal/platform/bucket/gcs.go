package bucket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ErrObjectNotFound indicates a requested object is missing from the bucket.
var ErrObjectNotFound = errors.New("platform/bucket: object not found")

// Client wraps one Google Cloud Storage bucket used as the interchange
// mailbox with the external ledger.
type Client struct {
	bucket *storage.BucketHandle
	gcs    *storage.Client
}

// New creates a bucket client. An empty credentialsJSON falls back to
// application default credentials.
func New(ctx context.Context, bucketName, credentialsJSON string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	gcs, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("platform/bucket: new client: %w", err)
	}

	return &Client{bucket: gcs.Bucket(bucketName), gcs: gcs}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.gcs.Close()
}

// Upload writes an object under folder/name. The write is atomic: the object
// only becomes visible once Close succeeds.
func (c *Client) Upload(ctx context.Context, folder, name string, data []byte) error {
	w := c.bucket.Object(path.Join(folder, name)).NewWriter(ctx)
	w.ContentType = "text/plain"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("platform/bucket: upload %s/%s: %w", folder, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("platform/bucket: upload %s/%s: %w", folder, name, err)
	}
	return nil
}

// Fetch reads an object under folder/name.
func (c *Client) Fetch(ctx context.Context, folder, name string) ([]byte, error) {
	r, err := c.bucket.Object(path.Join(folder, name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, folder, name)
	}
	if err != nil {
		return nil, fmt.Errorf("platform/bucket: fetch %s/%s: %w", folder, name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("platform/bucket: fetch %s/%s: %w", folder, name, err)
	}
	return data, nil
}

// List returns the object names directly under a folder, sorted for
// deterministic processing order.
func (c *Client) List(ctx context.Context, folder string) ([]string, error) {
	it := c.bucket.Objects(ctx, &storage.Query{Prefix: folder + "/"})

	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("platform/bucket: list %s: %w", folder, err)
		}
		name := path.Base(attrs.Name)
		if name == "" || attrs.Name == folder+"/" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Move copies an object to another folder and deletes the original. Used to
// shelve processed feedback so the next poll skips it.
func (c *Client) Move(ctx context.Context, fromFolder, toFolder, name string) error {
	src := c.bucket.Object(path.Join(fromFolder, name))
	dst := c.bucket.Object(path.Join(toFolder, name))

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return fmt.Errorf("platform/bucket: move %s: %w", name, err)
	}
	if err := src.Delete(ctx); err != nil {
		return fmt.Errorf("platform/bucket: move %s: delete source: %w", name, err)
	}
	return nil
}
