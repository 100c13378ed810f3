package sdr

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig describes how to reach a radio host whose IIO sysfs attributes
// carry its tuning state.
type SSHConfig struct {
	Host      string
	User      string
	Password  string
	KeyPath   string
	Port      int
	SysfsRoot string
	Timeout   time.Duration
	// Device is the IIO PHY device directory, e.g. iio:device0.
	Device string
}

// Attribute addresses one sysfs file of an IIO device.
type Attribute struct {
	Channel string
	Attr    string
	Output  bool
}

// SSHAttributeWriter keeps one SSH client open and writes sysfs attributes
// through it.
type SSHAttributeWriter struct {
	mu     sync.Mutex
	cfg    SSHConfig
	client *ssh.Client
}

// NewSSHAttributeWriter validates configuration and prepares a writer instance.
func NewSSHAttributeWriter(cfg SSHConfig) (*SSHAttributeWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is required for sysfs tuning")
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = "/sys/bus/iio/devices"
	}
	if cfg.Device == "" {
		cfg.Device = "iio:device0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &SSHAttributeWriter{cfg: cfg}, nil
}

// WriteAttribute writes value to the sysfs file behind a.
func (w *SSHAttributeWriter) WriteAttribute(ctx context.Context, a Attribute, value string) error {
	client, err := w.dial(ctx)
	if err != nil {
		return err
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	// printf avoids shell interpretation of the value contents.
	cmd := fmt.Sprintf("printf %s > %s", shellQuote(value), shellQuote(w.AttributePath(a)))
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("write sysfs attribute %s: %w", a.Attr, err)
	}
	return nil
}

// Close drops the SSH connection, if any.
func (w *SSHAttributeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == nil {
		return nil
	}
	err := w.client.Close()
	w.client = nil
	return err
}

func (w *SSHAttributeWriter) dial(ctx context.Context) (*ssh.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		return w.client, nil
	}

	auth := []ssh.AuthMethod{}
	if w.cfg.Password != "" {
		auth = append(auth, ssh.Password(w.cfg.Password))
	}
	if w.cfg.KeyPath != "" {
		key, err := os.ReadFile(w.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh password or key configured")
	}

	config := &ssh.ClientConfig{
		User:            w.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         w.cfg.Timeout,
	}

	addr := net.JoinHostPort(w.cfg.Host, fmt.Sprintf("%d", w.cfg.Port))
	dialer := net.Dialer{Timeout: w.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh: %w", err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create ssh client: %w", err)
	}

	w.client = ssh.NewClient(clientConn, chans, reqs)
	return w.client, nil
}

// AttributePath maps a to its sysfs file, e.g.
// /sys/bus/iio/devices/iio:device0/out_altvoltage1_frequency.
func (w *SSHAttributeWriter) AttributePath(a Attribute) string {
	base := filepath.Join(w.cfg.SysfsRoot, w.cfg.Device)
	if a.Channel == "" {
		return filepath.Join(base, a.Attr)
	}
	prefix := "in"
	if a.Output || strings.HasPrefix(strings.ToLower(a.Channel), "altvoltage") {
		prefix = "out"
	}
	return filepath.Join(base, fmt.Sprintf("%s_%s_%s", prefix, a.Channel, a.Attr))
}

// shellQuote returns a value wrapped in single quotes with embedded quotes escaped
// for safe shell usage.
func shellQuote(value string) string {
	escaped := strings.ReplaceAll(value, "'", "'\\''")
	return fmt.Sprintf("'%s'", escaped)
}

// AttributeWriter is the write side SysfsTuner needs.
type AttributeWriter interface {
	WriteAttribute(ctx context.Context, a Attribute, value string) error
}

// AttributeMap lists the sysfs files each tuning call writes.
type AttributeMap struct {
	Frequency  []Attribute
	SampleRate []Attribute
	Bandwidth  []Attribute
	Gains      map[string][]Attribute
}

// AD9361Attributes is the attribute layout of AD9361 based radios (Pluto):
// both LOs follow the requested frequency, gains are addressed as "rx"/"tx".
func AD9361Attributes() AttributeMap {
	return AttributeMap{
		Frequency: []Attribute{
			{Channel: "altvoltage0", Attr: "frequency"},
			{Channel: "altvoltage1", Attr: "frequency"},
		},
		SampleRate: []Attribute{
			{Channel: "voltage0", Attr: "sampling_frequency"},
		},
		Bandwidth: []Attribute{
			{Channel: "voltage0", Attr: "rf_bandwidth"},
			{Channel: "voltage0", Attr: "rf_bandwidth", Output: true},
		},
		Gains: map[string][]Attribute{
			"rx": {{Channel: "voltage0", Attr: "hardwaregain"}},
			"tx": {{Channel: "voltage0", Attr: "hardwaregain", Output: true}},
		},
	}
}

// SysfsTuner implements Tuner by writing IIO attributes. Every call is
// bounded by timeout and reports failure instead of returning an error.
type SysfsTuner struct {
	w       AttributeWriter
	attrs   AttributeMap
	timeout time.Duration
}

// NewSysfsTuner builds a tuner on top of w.
func NewSysfsTuner(w AttributeWriter, attrs AttributeMap, timeout time.Duration) *SysfsTuner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SysfsTuner{w: w, attrs: attrs, timeout: timeout}
}

func (t *SysfsTuner) SetFrequency(hz float64) bool {
	return t.writeAll(t.attrs.Frequency, fmt.Sprintf("%.0f", hz))
}

func (t *SysfsTuner) SetSampleRate(hz float64) bool {
	return t.writeAll(t.attrs.SampleRate, fmt.Sprintf("%.0f", hz))
}

func (t *SysfsTuner) SetBandwidth(hz float64) bool {
	return t.writeAll(t.attrs.Bandwidth, fmt.Sprintf("%.0f", hz))
}

func (t *SysfsTuner) SetGain(stage string, db float64) bool {
	return t.writeAll(t.attrs.Gains[strings.ToLower(stage)], fmt.Sprintf("%g", db))
}

// SetAmplifier is not exposed through sysfs on supported radios.
func (t *SysfsTuner) SetAmplifier(bool) bool { return false }

func (t *SysfsTuner) writeAll(attrs []Attribute, value string) bool {
	if len(attrs) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	for _, a := range attrs {
		if err := t.w.WriteAttribute(ctx, a, value); err != nil {
			return false
		}
	}
	return true
}
