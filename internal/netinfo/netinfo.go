// Package netinfo renders the convenience join address for the host screen:
// it looks up the server's LAN address and encodes the join URL as a QR code.
package netinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Info is the server-reported network identity.
type Info struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
}

// Lookup fetches network info from the server. A nil client uses
// http.DefaultClient.
func Lookup(ctx context.Context, client *http.Client, baseURL string) (*Info, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/info", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch network info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("network info returned status %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode network info: %w", err)
	}
	return &info, nil
}

// JoinURLs builds the primary join URL from the LAN IP, plus a friendlier
// .local alternate when the hostname allows one.
func (i *Info) JoinURLs(scheme string, port int) (primary, alt string) {
	if i.IP != "" {
		primary = fmt.Sprintf("%s://%s:%d", scheme, i.IP, port)
	}
	if i.Hostname != "" && !strings.Contains(i.Hostname, "localhost") {
		host := i.Hostname
		if !strings.HasSuffix(host, ".local") {
			host += ".local"
		}
		alt = fmt.Sprintf("%s://%s:%d", scheme, host, port)
	}
	return primary, alt
}

// JoinQR encodes a join URL as a PNG QR code.
func JoinQR(url string, size int) ([]byte, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
