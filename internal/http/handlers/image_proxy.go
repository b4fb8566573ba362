package handlers

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

// allowedMediaHosts limits the proxy to Meta's media CDNs; WhatsApp media
// URLs require the bearer token this service holds, which must never be
// forwarded to arbitrary hosts.
var allowedMediaHosts = map[string]bool{
	"lookaside.fbsbx.com": true,
	"graph.facebook.com":  true,
}

// ImageProxyHandler fetches WhatsApp media on behalf of the admin dashboard,
// which cannot attach the access token itself.
type ImageProxyHandler struct {
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewImageProxyHandler(token string, logger *logging.Logger) *ImageProxyHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ImageProxyHandler{
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Handle proxies GET /proxy/image?url=<media url>.
func (h *ImageProxyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	target, err := url.Parse(raw)
	if err != nil || target.Scheme != "https" {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	if !mediaHostAllowed(target.Hostname()) {
		writeError(w, http.StatusForbidden, "host not allowed")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error("media fetch failed", "error", err, "host", target.Hostname())
		writeError(w, http.StatusBadGateway, "media fetch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.logger.Warn("media fetch returned error status", "status", resp.StatusCode, "host", target.Hostname())
		writeError(w, http.StatusBadGateway, "media fetch failed")
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, resp.Body)
}

func mediaHostAllowed(host string) bool {
	if allowedMediaHosts[host] {
		return true
	}
	return strings.HasSuffix(host, ".whatsapp.net")
}
