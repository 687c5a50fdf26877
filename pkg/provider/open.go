package provider

import (
	"context"

	"github.com/rhuss/chatwire/pkg/provider/remote"
	"github.com/rhuss/chatwire/pkg/stream"
)

// Open posts body to path and returns a Stream over the response. The
// Stream owns the response body.
func Open(ctx context.Context, client *remote.Client, path string, body any, d stream.Dialect, opts ...stream.Option) (*stream.Stream, error) {
	resp, err := client.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	return stream.New(resp.Body, d, opts...), nil
}
