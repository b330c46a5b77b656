package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pulsestack/pulse-monitor/internal/utils"
)

// ValkeyProvider implements Provider against a Valkey/Redis-compatible
// server. It dials one short-lived connection per operation; the dispatcher
// issues a handful of commands per check, so pooling would buy nothing.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// ValkeyConfig holds connection parameters for the Valkey server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          bool
}

// NewValkeyProvider creates a Provider and pings the target to fail fast on
// bad credentials or connectivity.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}

	provider := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	reply, err := provider.command(ctx, "PING")
	if err != nil {
		return nil, utils.NewAppError("valkey.connect", "ping failed", err)
	}
	if reply.prefix != '+' || string(reply.data) != "PONG" {
		return nil, fmt.Errorf("unexpected PING response: %s", reply.data)
	}
	return provider, nil
}

// SetNX stores the value only if the key does not already exist.
func (p *ValkeyProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	args = append(args, "NX")

	reply, err := p.command(ctx, args...)
	if err != nil {
		return false, err
	}
	switch reply.prefix {
	case '+':
		return true, nil
	case nilPrefix:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected SET NX reply %q", reply.prefix)
	}
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.command(ctx, "DEL", key)
	return err
}

// Close is a no-op; connections are per-operation.
func (p *ValkeyProvider) Close() error { return nil }

const nilPrefix = byte('_')

type reply struct {
	prefix byte
	data   []byte
}

func (p *ValkeyProvider) command(ctx context.Context, args ...string) (reply, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return reply{}, err
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	if p.cfg.Password != "" {
		auth := []string{"AUTH", p.cfg.Password}
		if p.cfg.Username != "" {
			auth = []string{"AUTH", p.cfg.Username, p.cfg.Password}
		}
		if err := p.roundTrip(conn, reader, writer, auth, "auth"); err != nil {
			return reply{}, err
		}
	}
	if p.cfg.DB > 0 {
		sel := []string{"SELECT", strconv.Itoa(p.cfg.DB)}
		if err := p.roundTrip(conn, reader, writer, sel, "select"); err != nil {
			return reply{}, err
		}
	}

	if err := p.send(conn, writer, args); err != nil {
		return reply{}, err
	}
	return p.receive(conn, reader)
}

// roundTrip sends a bootstrap command and requires an OK reply.
func (p *ValkeyProvider) roundTrip(conn net.Conn, reader *bufio.Reader, writer *bufio.Writer, args []string, op string) error {
	if err := p.send(conn, writer, args); err != nil {
		return err
	}
	r, err := p.receive(conn, reader)
	if err != nil {
		return err
	}
	if r.prefix != '+' || !strings.EqualFold(string(r.data), "OK") {
		return fmt.Errorf("%s failed: %s", op, r.data)
	}
	return nil
}

func (p *ValkeyProvider) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	if p.cfg.TLS {
		host := p.cfg.Addr
		if h, _, err := net.SplitHostPort(p.cfg.Addr); err == nil {
			host = h
		}
		return tls.DialWithDialer(&dialer, "tcp", p.cfg.Addr, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		})
	}
	return dialer.DialContext(ctx, "tcp", p.cfg.Addr)
}

func (p *ValkeyProvider) send(conn net.Conn, writer *bufio.Writer, args []string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
		return err
	}
	fmt.Fprintf(writer, "*%d\r\n", len(args))
	for _, arg := range args {
		fmt.Fprintf(writer, "$%d\r\n%s\r\n", len(arg), arg)
	}
	return writer.Flush()
}

func (p *ValkeyProvider) receive(conn net.Conn, reader *bufio.Reader) (reply, error) {
	if err := conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout)); err != nil {
		return reply{}, err
	}
	prefix, err := reader.ReadByte()
	if err != nil {
		return reply{}, err
	}
	line, err := readLine(reader)
	if err != nil {
		return reply{}, err
	}
	switch prefix {
	case '+', ':':
		return reply{prefix: prefix, data: line}, nil
	case '-':
		return reply{}, errors.New(string(line))
	case '$':
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return reply{}, err
		}
		if size == -1 {
			return reply{prefix: nilPrefix}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return reply{}, err
		}
		return reply{prefix: prefix, data: buf[:size]}, nil
	default:
		return reply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func readLine(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return []byte(line), nil
}
