package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"spcguard/internal/config"
	"spcguard/internal/model"
)

const maxStreamLine = 1 << 20

// StartTCPStream accepts line-oriented connections from instruments. Each
// connection gets its own parser so CSV headers never leak between peers.
func StartTCPStream(ctx context.Context, cfg *config.Manager, out chan<- model.Measurement, logger *slog.Logger) {
	current := cfg.Get().Ingest.TCPStream
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp stream listen error", "addr", current.Addr, "err", err)
		}
		return
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", ln.Addr().String())
	}
	go serveTCPStream(ctx, ln, cfg, out, logger)
}

func serveTCPStream(ctx context.Context, ln net.Listener, cfg *config.Manager, out chan<- model.Measurement, logger *slog.Logger) {
	var wg sync.WaitGroup
	defer wg.Wait()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("tcp stream accept error", "err", err)
			}
			if !BackoffSleep(ctx, 0) {
				return
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleTCPStreamConn(ctx, conn, cfg, NewParser(), out, logger)
		}()
	}
}

func handleTCPStreamConn(ctx context.Context, conn net.Conn, cfg *config.Manager, parser *Parser, out chan<- model.Measurement, logger *slog.Logger) lineStats {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	var stats lineStats
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), maxStreamLine)
	for scanner.Scan() {
		handleLine(ctx, scanner.Text(), parser, cfg.Get(), "tcp", out, &stats, logger)
		if ctx.Err() != nil {
			break
		}
	}
	if logger != nil {
		remote := ""
		if addr := conn.RemoteAddr(); addr != nil {
			remote = addr.String()
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Warn("tcp stream read error", "remote", remote, "err", err)
		}
		logger.Info("tcp stream connection closed", "remote", remote,
			"accepted", stats.accepted, "excluded", stats.excluded, "rejected", stats.rejected)
	}
	return stats
}
