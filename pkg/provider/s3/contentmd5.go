package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const contentMD5MiddlewareID = "ossbrowse:ContentMD5"

// addContentMD5 registers a finalize middleware that sets Content-MD5 over the
// request body. Newer SDK releases send only x-amz-checksum-* headers on
// DeleteObjects, which many S3-compatible endpoints reject.
//
// It is attached per call (s3.WithAPIOptions), not client-wide.
func addContentMD5(stack *middleware.Stack) error {
	return stack.Finalize.Add(middleware.FinalizeMiddlewareFunc(contentMD5MiddlewareID, contentMD5), middleware.Before)
}

func contentMD5(ctx context.Context, in middleware.FinalizeInput, next middleware.FinalizeHandler) (middleware.FinalizeOutput, middleware.Metadata, error) {
	req, ok := in.Request.(*smithyhttp.Request)
	if !ok {
		return middleware.FinalizeOutput{}, middleware.Metadata{}, fmt.Errorf("content-md5: unexpected request type %T", in.Request)
	}

	stream := req.GetStream()
	if stream == nil {
		return next.HandleFinalize(ctx, in)
	}

	body, err := io.ReadAll(stream)
	if err != nil {
		return middleware.FinalizeOutput{}, middleware.Metadata{}, fmt.Errorf("content-md5: read body: %w", err)
	}

	sum := md5.Sum(body)
	req.Header.Set("Content-MD5", base64.StdEncoding.EncodeToString(sum[:]))

	req, err = req.SetStream(bytes.NewReader(body))
	if err != nil {
		return middleware.FinalizeOutput{}, middleware.Metadata{}, fmt.Errorf("content-md5: reset body: %w", err)
	}
	in.Request = req

	return next.HandleFinalize(ctx, in)
}
