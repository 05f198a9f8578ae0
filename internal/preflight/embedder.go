package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/markstash/markstash/internal/embed"
)

// embedderProbeTimeout bounds the provider reachability probe so doctor
// stays fast when the provider is down.
const embedderProbeTimeout = 5 * time.Second

// CheckEmbedder verifies the configured embedding provider is reachable.
// Not required: search degrades to lexical-only without embeddings, and
// queued bookmarks are retried once the provider is back.
func (c *Checker) CheckEmbedder(ctx context.Context) Result {
	result := Result{Name: "embedder", Required: false}

	embedder, err := embed.NewFromConfig(c.cfg.Embeddings)
	if err != nil {
		result.Status = StatusWarn
		result.Message = err.Error()
		return result
	}
	defer func() { _ = embedder.Close() }()

	ctx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()

	if !embedder.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s is not reachable (search degrades to lexical-only)", embedder.ModelName())
		return result
	}

	result.Status = StatusPass
	if dims := embedder.Dimensions(); dims > 0 {
		result.Message = fmt.Sprintf("%s (%d dimensions)", embedder.ModelName(), dims)
	} else {
		result.Message = fmt.Sprintf("%s (dimensions detected on first use)", embedder.ModelName())
	}
	return result
}
