// Package remote implements vision.AntiSpoof against an external liveness
// service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/httpclient"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/privacy"
	"github.com/tphakala/faceattend/internal/vision"
)

const (
	endpointPath = "/antispoof"
	maxBodyBytes = 64 << 10
)

// Verdict is the service response.
type Verdict struct {
	IsReal bool    `json:"is_real"`
	Score  float64 `json:"score"`
}

// AntiSpoofClient posts a JPEG face crop to {baseURL}/antispoof.
type AntiSpoofClient struct {
	endpoint  string
	threshold float64
	http      *httpclient.Client
	log       logger.Logger
}

// NewAntiSpoofClient creates a client. Faces are reported as real only if the
// service says so and the score reaches threshold.
func NewAntiSpoofClient(baseURL string, threshold float64, timeout time.Duration, transport http.RoundTripper) *AntiSpoofClient {
	return &AntiSpoofClient{
		endpoint:  strings.TrimRight(baseURL, "/") + endpointPath,
		threshold: threshold,
		http:      httpclient.New(&httpclient.Config{DefaultTimeout: timeout, Transport: transport}),
		log:       vision.GetLogger().Module("antispoof"),
	}
}

// Check implements vision.AntiSpoof.
func (c *AntiSpoofClient) Check(ctx context.Context, img image.Image, box image.Rectangle) (bool, float64, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, vision.Crop(img, box), imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return false, 0, errors.New(err).Category(errors.CategoryRecognition).Context("stage", "encode").Build()
	}

	resp, err := c.http.PostMultipart(ctx, c.endpoint,
		[]httpclient.FilePart{{Field: "image", Filename: "face.jpg", ContentType: "image/jpeg", Data: buf.Bytes()}},
		nil)
	if err != nil {
		// transport errors quote the request URL
		err = privacy.WrapError(err)
		c.log.Warn("liveness service unavailable",
			logger.String("endpoint", privacy.AnonymizeURL(c.endpoint)),
			logger.Error(err))
		return false, 0, errors.New(err).
			Component("vision").
			Category(errors.CategoryNetwork).
			Context("endpoint", privacy.AnonymizeURL(c.endpoint)).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false, 0, errors.New(err).Category(errors.CategoryNetwork).Build()
	}
	if resp.StatusCode != http.StatusOK {
		return false, 0, errors.Newf("liveness service returned %d", resp.StatusCode).
			Component("vision").
			Category(errors.CategoryHTTP).
			Context("status", resp.StatusCode).
			Build()
	}

	var v Verdict
	if err := json.Unmarshal(body, &v); err != nil {
		return false, 0, errors.New(fmt.Errorf("decode liveness verdict: %w", err)).
			Category(errors.CategoryFileParsing).
			Build()
	}

	return v.IsReal && v.Score >= c.threshold, v.Score, nil
}

// Close releases idle connections.
func (c *AntiSpoofClient) Close() error {
	c.http.Close()
	return nil
}
