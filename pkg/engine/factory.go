package engine

import (
	"context"
	"fmt"

	"github.com/3leaps/ossbrowse/pkg/credential"
	"github.com/3leaps/ossbrowse/pkg/provider"
	"github.com/3leaps/ossbrowse/pkg/provider/file"
	"github.com/3leaps/ossbrowse/pkg/provider/s3"
	"github.com/3leaps/ossbrowse/pkg/session"
)

// NewFactory returns the session factory for cred. A file:// endpoint maps
// to a local directory; anything else is an S3-compatible endpoint. The
// secret is read from secrets on every build, so a rotated secret is picked
// up by the next reconnect.
func NewFactory(cred credential.Credential, secrets credential.SecretStore) session.Factory {
	return func(ctx context.Context) (provider.Bucket, error) {
		if credential.IsLocal(cred.Endpoint) {
			p, err := file.FromURL(cred.Endpoint)
			if err != nil {
				return nil, err
			}
			return p, nil
		}

		cfg := s3.Config{
			Bucket:         cred.Bucket,
			Region:         cred.Region,
			Endpoint:       cred.Endpoint,
			ForcePathStyle: cred.PathStyle(),
		}
		if cred.AccessKeyID != "" {
			if secrets == nil {
				return nil, fmt.Errorf("credential %s: no secret store configured", cred.ID)
			}
			secret, err := secrets.Secret(cred.ID)
			if err != nil {
				return nil, err
			}
			cfg.AccessKeyID = cred.AccessKeyID
			cfg.SecretAccessKey = secret
		}
		p, err := s3.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
