package executor

import (
	"context"
	"fmt"
	"io"

	"gitlab.com/opensubmit.net/internal/tcp"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Connect opens the control channel chosen in the config. Files are always downloaded over HTTP.
func Connect(ctx context.Context, cfg *Config) (Coordinator, Downloader, io.Closer, error) {
	httpClient, err := NewHTTPClient(cfg.Server.URL, cfg.Server.Secret, cfg.MachineID)
	if err != nil {
		return nil, nil, nil, err
	}

	switch cfg.Server.Transport {
	case TransportTCP:
		tcpClient, err := tcp.Dial(ctx, cfg.Server.TCPAddr, cfg.Server.Secret)
		if err != nil {
			return nil, nil, nil, err
		}
		return tcpClient, httpClient, tcpClient, nil
	case TransportHTTP, "":
		return httpClient, httpClient, nopCloser{}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown transport %q", cfg.Server.Transport)
	}
}
