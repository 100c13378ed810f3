package sdr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rjboer/sdrwave/internal/logging"
	"github.com/rjboer/sdrwave/internal/mdns"
)

const (
	defaultWriteTimeout   = 50 * time.Millisecond
	defaultReadTimeout    = 250 * time.Millisecond
	defaultConnectTimeout = 5 * time.Second
	defaultDiscoverTTL    = 3 * time.Second
)

// TCPDevice streams CF32 samples over a TCP connection. Tuning is delegated
// to an optional Tuner; without one every tuning call reports false.
type TCPDevice struct {
	conn   net.Conn
	tuner  Tuner
	closer io.Closer
	logger logging.Logger

	writeTimeout time.Duration
	readTimeout  time.Duration

	wmu  sync.Mutex
	wbuf []byte

	rmu   sync.Mutex
	carry []byte

	smu    sync.Mutex
	active map[Direction]bool
	closed bool
}

// DialTCP connects to cfg.Address, discovering it over mDNS first when the
// address is empty and cfg.Discover is set.
func DialTCP(ctx context.Context, cfg Config, logger logging.Logger) (*TCPDevice, error) {
	if logger == nil {
		logger = logging.Default()
	}
	addr := cfg.Address
	if addr == "" {
		if !cfg.Discover {
			return nil, fmt.Errorf("tcp backend: no address configured")
		}
		found, err := discoverAddress(ctx, cfg)
		if err != nil {
			return nil, err
		}
		addr = found
		logger.Info("discovered iq endpoint",
			logging.Field{Key: "subsystem", Value: "sdr"},
			logging.Field{Key: "address", Value: addr})
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial iq endpoint %s: %w", addr, err)
	}

	dev := NewTCPDevice(conn, cfg, logger)
	if cfg.SSH.Host != "" {
		w, err := NewSSHAttributeWriter(cfg.SSH)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		dev.tuner = NewSysfsTuner(w, AD9361Attributes(), cfg.SSH.Timeout)
		dev.closer = w
	}
	return dev, nil
}

// NewTCPDevice wraps an established connection. The tuner is left unset.
func NewTCPDevice(conn net.Conn, cfg Config, logger logging.Logger) *TCPDevice {
	if logger == nil {
		logger = logging.Default()
	}
	dev := &TCPDevice{
		conn:         conn,
		logger:       logger,
		writeTimeout: cfg.WriteTimeout,
		readTimeout:  cfg.ReadTimeout,
		active:       make(map[Direction]bool),
	}
	if dev.writeTimeout <= 0 {
		dev.writeTimeout = defaultWriteTimeout
	}
	if dev.readTimeout <= 0 {
		dev.readTimeout = defaultReadTimeout
	}
	return dev
}

// SetTuner installs the tuner used for configuration calls.
func (d *TCPDevice) SetTuner(t Tuner) { d.tuner = t }

func discoverAddress(ctx context.Context, cfg Config) (string, error) {
	ttl := cfg.DiscoverTTL
	if ttl <= 0 {
		ttl = defaultDiscoverTTL
	}
	dctx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	hosts, err := mdns.Discover(dctx, cfg.Service, "")
	if err != nil {
		return "", fmt.Errorf("discover iq endpoint: %w", err)
	}
	if len(hosts) == 0 {
		return "", fmt.Errorf("discover iq endpoint: no hosts answered within %s", ttl)
	}
	return hosts[0].Addr(), nil
}

func (d *TCPDevice) SetFrequency(hz float64) bool {
	return d.tuner != nil && d.tuner.SetFrequency(hz)
}

func (d *TCPDevice) SetSampleRate(hz float64) bool {
	return d.tuner != nil && d.tuner.SetSampleRate(hz)
}

func (d *TCPDevice) SetBandwidth(hz float64) bool {
	return d.tuner != nil && d.tuner.SetBandwidth(hz)
}

func (d *TCPDevice) SetGain(stage string, db float64) bool {
	return d.tuner != nil && d.tuner.SetGain(stage, db)
}

func (d *TCPDevice) SetAmplifier(enabled bool) bool {
	return d.tuner != nil && d.tuner.SetAmplifier(enabled)
}

// Activate marks the direction active. The connection carries both
// directions so no additional setup is needed.
func (d *TCPDevice) Activate(dir Direction) error {
	d.smu.Lock()
	defer d.smu.Unlock()
	if d.closed {
		return net.ErrClosed
	}
	d.active[dir] = true
	return nil
}

func (d *TCPDevice) Deactivate(dir Direction) error {
	d.smu.Lock()
	defer d.smu.Unlock()
	if !d.active[dir] {
		return fmt.Errorf("%s stream not active", dir)
	}
	delete(d.active, dir)
	return nil
}

// Close closes the connection and the tuner transport.
func (d *TCPDevice) Close() error {
	d.smu.Lock()
	if d.closed {
		d.smu.Unlock()
		return nil
	}
	d.closed = true
	d.smu.Unlock()

	err := d.conn.Close()
	if d.closer != nil {
		if cerr := d.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Write sends chunk as CF32. A write that cannot complete within the write
// timeout is backpressure: the chunk is reported as not accepted. Bytes of a
// sample that was cut mid-way are still flushed so the peer stays aligned.
func (d *TCPDevice) Write(ctx context.Context, chunk []complex64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()

	d.wbuf = EncodeCF32(d.wbuf[:0], chunk)
	if err := d.conn.SetWriteDeadline(deadline(ctx, d.writeTimeout)); err != nil {
		return false, fmt.Errorf("set write deadline: %w", err)
	}
	n, err := d.conn.Write(d.wbuf)
	if err == nil {
		return true, nil
	}
	if !isTimeout(err) {
		return false, fmt.Errorf("write iq: %w", err)
	}
	if rem := n % BytesPerSample; rem != 0 {
		if err := d.completeSample(d.wbuf[n : n+BytesPerSample-rem]); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (d *TCPDevice) completeSample(tail []byte) error {
	if err := d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout * 10)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := d.conn.Write(tail); err != nil {
		return fmt.Errorf("complete partial sample: %w", err)
	}
	return nil
}

// Read collects up to count samples, returning whatever arrived when the
// read timeout expires. Bytes of an incomplete trailing sample are kept for
// the next call.
func (d *TCPDevice) Read(ctx context.Context, count int) ([]complex64, error) {
	if count <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.rmu.Lock()
	defer d.rmu.Unlock()

	want := count * BytesPerSample
	buf := make([]byte, want)
	have := copy(buf, d.carry)
	d.carry = d.carry[:0]

	if err := d.conn.SetReadDeadline(deadline(ctx, d.readTimeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	var rerr error
	for have < want {
		n, err := d.conn.Read(buf[have:])
		have += n
		if err != nil {
			if !isTimeout(err) {
				rerr = err
			}
			break
		}
	}

	samples, used := DecodeCF32(buf[:have])
	d.carry = append(d.carry, buf[used:have]...)
	if rerr != nil {
		if errors.Is(rerr, io.EOF) && len(samples) > 0 {
			return samples, nil
		}
		return samples, fmt.Errorf("read iq: %w", rerr)
	}
	return samples, nil
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	dl := time.Now().Add(timeout)
	if ctxDl, ok := ctx.Deadline(); ok && ctxDl.Before(dl) {
		return ctxDl
	}
	return dl
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
