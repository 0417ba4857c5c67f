/*
File: server.go
Version: 4.0.0
Last Update: 2026-10-19
Description: Listener orchestration for the HTTP API.
             Every configured address x port x protocol gets its own server; they all share
             one handler. Handlers live in api.go.
*/

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// Constants
const (
	DefaultServerTimeout = 5 * time.Second
	readHeaderTimeout    = 5 * time.Second
	quicIdleTimeout      = 30 * time.Second
)

// ServerShutdowner interface for graceful shutdown
type ServerShutdowner interface {
	Shutdown(ctx context.Context) error
	String() string
}

// HTTPServerWrapper wraps http.Server to implement ServerShutdowner
type HTTPServerWrapper struct {
	*http.Server
	tls bool
}

func (w *HTTPServerWrapper) Shutdown(ctx context.Context) error {
	return w.Server.Shutdown(ctx)
}

func (w *HTTPServerWrapper) String() string {
	if w.tls {
		return fmt.Sprintf("Protocol: HTTPS (HTTP/1.1&2) | Addr: %s", w.Addr)
	}
	return fmt.Sprintf("Protocol: HTTP | Addr: %s", w.Addr)
}

// HTTP3ServerWrapper wraps http3.Server to implement ServerShutdowner
type HTTP3ServerWrapper struct {
	*http3.Server
}

func (w *HTTP3ServerWrapper) Shutdown(ctx context.Context) error {
	return w.Server.Close()
}

func (w *HTTP3ServerWrapper) String() string {
	return fmt.Sprintf("Protocol: HTTP/3 (QUIC) | Addr: %s", w.Addr)
}

// loadTLSConfig returns nil when no certificate is configured.
func loadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// needsTLS reports whether any listener requires a certificate.
func needsTLS(listeners []ListenerConfig) bool {
	for _, l := range listeners {
		if l.Protocol == "https" || l.Protocol == "http3" {
			return true
		}
	}
	return false
}

func startServers(wg *sync.WaitGroup, cfg ServerConfig, handler http.Handler, tlsConfig *tls.Config) []ServerShutdowner {
	var servers []ServerShutdowner

	for _, l := range cfg.Listeners {
		for _, address := range l.Address {
			for _, port := range l.Port {
				addr := net.JoinHostPort(address, fmt.Sprintf("%d", port))

				switch l.Protocol {
				case "http", "https":
					secure := l.Protocol == "https"
					if secure && tlsConfig == nil {
						LogWarn("[SERVER] Skipping %s listener on %s: no TLS certificate configured", l.Protocol, addr)
						continue
					}
					srv := &http.Server{
						Addr:              addr,
						Handler:           handler,
						ReadHeaderTimeout: readHeaderTimeout,
					}
					if secure {
						srv.TLSConfig = tlsConfig.Clone()
					}
					wrapper := &HTTPServerWrapper{Server: srv, tls: secure}

					// Bind here so a taken port is reported before the server is counted
					ln, err := net.Listen("tcp", addr)
					if err != nil {
						LogError("[SERVER] Cannot bind [%s]: %v", wrapper.String(), err)
						continue
					}

					wg.Add(1)
					go func() {
						defer wg.Done()
						LogInfo("Starting Server [%s]", wrapper.String())
						var err error
						if secure {
							err = srv.ServeTLS(ln, "", "")
						} else {
							err = srv.Serve(ln)
						}
						if err != nil && err != http.ErrServerClosed {
							LogError("Server [%s] stopped: %v", wrapper.String(), err)
						}
					}()
					servers = append(servers, wrapper)

				case "http3":
					if tlsConfig == nil {
						LogWarn("[SERVER] Skipping http3 listener on %s: no TLS certificate configured", addr)
						continue
					}
					// 0-RTT stays off: early data can be replayed and /predict is a POST
					h3Server := &http3.Server{
						Addr:      addr,
						Handler:   handler,
						TLSConfig: tlsConfig.Clone(),
						QuicConfig: &quic.Config{
							MaxIdleTimeout: quicIdleTimeout,
						},
					}
					wrapper := &HTTP3ServerWrapper{h3Server}

					conn, err := net.ListenPacket("udp", addr)
					if err != nil {
						LogError("[SERVER] Cannot bind [%s]: %v", wrapper.String(), err)
						continue
					}

					wg.Add(1)
					go func() {
						defer wg.Done()
						defer conn.Close()
						LogInfo("Starting Server [%s]", wrapper.String())
						if err := h3Server.Serve(conn); err != nil && err != http.ErrServerClosed {
							LogError("Server [%s] stopped: %v", wrapper.String(), err)
						}
					}()
					servers = append(servers, wrapper)
				}
			}
		}
	}

	return servers
}

// shutdownServers stops every server, waiting at most timeout in total.
func shutdownServers(servers []ServerShutdowner, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s ServerShutdowner) {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				LogWarn("[SERVER] Shutdown of [%s] failed: %v", s.String(), err)
			}
		}(s)
	}
	wg.Wait()
}
