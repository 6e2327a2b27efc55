package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/exec"
	"time"

	"assetd/internal/api"
	"assetd/internal/config"
)

const (
	serverStartTimeout = 3 * time.Second
	serverPollInterval = 100 * time.Millisecond
	serverPingTimeout  = 500 * time.Millisecond
)

// withClient runs fn against the configured API. When nothing answers on a
// loopback api_url, a child `assetd srv` is started for the duration of fn.
func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	client := api.NewClient(cfg.APIURL)

	ctx, cancel := context.WithTimeout(context.Background(), serverPingTimeout)
	err := client.Ping(ctx)
	cancel()
	if err == nil {
		return fn(client)
	}
	if !isLoopbackURL(cfg.APIURL) {
		return fmt.Errorf("api server %s is unreachable: %w", cfg.APIURL, err)
	}

	child, err := startLocalServer(cfg)
	if err != nil {
		return err
	}
	defer child.stop()

	if err := child.waitReady(client, serverStartTimeout); err != nil {
		return err
	}
	return fn(client)
}

// localServer is a child `assetd srv` process.
type localServer struct {
	cmd *exec.Cmd
}

func startLocalServer(cfg *config.Config) (*localServer, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(),
		"ASSETD_DB="+cfg.DBPath,
		"ASSETD_API_URL="+cfg.APIURL,
		"ASSETD_STORAGE_DRIVER="+cfg.Storage.Driver,
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start local server: %w", err)
	}
	slog.Debug("started local server", "pid", cmd.Process.Pid, "api_url", cfg.APIURL, "driver", cfg.Storage.Driver)
	return &localServer{cmd: cmd}, nil
}

func (s *localServer) waitReady(client *api.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ticker := time.NewTicker(serverPollInterval)
	defer ticker.Stop()

	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*serverPollInterval)
		err := client.Ping(pingCtx)
		pingCancel()
		if err == nil {
			return nil
		}
		// Something other than our server is answering on the port.
		if !isConnRefused(err) {
			s.stop()
			return err
		}

		select {
		case <-ctx.Done():
			s.stop()
			return errors.New("server did not start in time")
		case <-ticker.C:
		}
	}
}

func (s *localServer) stop() {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return
	}
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()
	s.cmd = nil
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
