//go:build !gcp

package archive

import (
	"context"
	"errors"
)

func openGCS(context.Context, Config) (Store, error) {
	return nil, errors.New("archive: GCS backend is not enabled in this build (use -tags gcp)")
}
