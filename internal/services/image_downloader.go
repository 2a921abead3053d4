package services

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
)

var blockedImageNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // includes the cloud metadata address
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		out = append(out, network)
	}
	return out
}

// ImageDownloader fetches meal photos. Image URLs may come from API clients,
// so requests go through a safeurl client that refuses private, loopback and
// link-local targets after DNS resolution.
type ImageDownloader struct {
	httpClient *http.Client
}

func NewImageDownloader(timeout time.Duration) *ImageDownloader {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return &ImageDownloader{httpClient: safeurl.Client(cfg).Client}
}

// ValidateImageURL rejects URLs that can never be fetched safely. It does not
// resolve DNS; the safeurl client checks resolved addresses at dial time.
func ValidateImageURL(rawURL string) error {
	if rawURL == "" {
		return apperrors.NewValidationError("image_url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return apperrors.NewValidationError("image_url is not a valid URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return apperrors.NewValidationError("image_url must use http or https")
	}
	host := u.Hostname()
	if host == "" || strings.EqualFold(host, "localhost") {
		return apperrors.NewValidationError("image_url host is not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedImageNetworks {
			if network.Contains(ip) {
				return apperrors.NewValidationError("image_url host is not allowed")
			}
		}
	}
	return nil
}

// Fetch downloads a photo, for example a Telegram file URL.
func (d *ImageDownloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ValidateImageURL(rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.NewValidationError("image_url is not a valid URL")
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalAPIError(fmt.Errorf("failed to download image: %w", err), "image")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExternalAPIError(fmt.Errorf("failed to download image: status %d", resp.StatusCode), "image")
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, apperrors.NewExternalAPIError(fmt.Errorf("failed to read image data: %w", err), "image")
	}
	return data, nil
}
