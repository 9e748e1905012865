package core

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
)

var diagOnce sync.Once

// LogNetworkDiagnostics emits one platform/runtime snapshot per process
// lifetime, triggered by the first network-class failure. Repeat calls are
// no-ops. The snapshot exists to make proxy and TLS misconfiguration visible
// in logs collected from user machines.
func LogNetworkDiagnostics(url string, err error) {
	diagOnce.Do(func() {
		attrs := []any{
			"go_version", runtime.Version(),
			"os", runtime.GOOS,
			"arch", runtime.GOARCH,
			"num_cpu", runtime.NumCPU(),
			"https_proxy", os.Getenv("HTTPS_PROXY"),
			"http_proxy", os.Getenv("HTTP_PROXY"),
			"no_proxy", os.Getenv("NO_PROXY"),
			"ssl_cert_file", os.Getenv("SSL_CERT_FILE"),
		}
		if url != "" {
			attrs = append(attrs, "url", url)
		}
		if err != nil {
			attrs = append(attrs, "error", err.Error())
		}
		slog.Debug("network diagnostics", attrs...)
	})
}

// ResetNetworkDiagnostics re-arms the one-shot guard. Test helper only.
func ResetNetworkDiagnostics() {
	diagOnce = sync.Once{}
}
