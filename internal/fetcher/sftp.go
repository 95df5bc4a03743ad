package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/ternarybob/arbor"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig mirrors a LogSource's connection dict for type=sftp/ssh.
type SFTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey string

	RemotePath     string
	Pattern        string
	IncludeRotated bool

	KnownHostsFile        string
	InsecureIgnoreHostKey bool

	ConnectTimeout time.Duration
	Retries        int
	RetryDelay     time.Duration
}

// SFTPFetcher pulls files from a single SSH/SFTP source.
type SFTPFetcher struct {
	cfg    SFTPConfig
	logger arbor.ILogger

	client *sftp.Client
	conn   *ssh.Client
}

// NewSFTPFetcher builds a fetcher for the given connection config.
func NewSFTPFetcher(cfg SFTPConfig, logger arbor.ILogger) *SFTPFetcher {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &SFTPFetcher{cfg: cfg, logger: logger}
}

func (f *SFTPFetcher) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if f.cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(f.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		return cb, nil
	}
	if f.cfg.InsecureIgnoreHostKey {
		f.logger.Warn().Str("host", f.cfg.Host).Msg("SFTP host-key verification disabled by explicit config - insecure")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return nil, fmt.Errorf("no known_hosts_file configured and insecure_ignore_host_key is not set")
}

func (f *SFTPFetcher) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if f.cfg.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(f.cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if f.cfg.Password != "" {
		methods = append(methods, ssh.Password(f.cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no credentials configured (need password or private_key)")
	}
	return methods, nil
}

func (f *SFTPFetcher) connect(ctx context.Context) error {
	if f.client != nil {
		return nil
	}

	hostKeyCB, err := f.hostKeyCallback()
	if err != nil {
		return err
	}
	auths, err := f.authMethods()
	if err != nil {
		return err
	}

	sshCfg := &ssh.ClientConfig{
		User:            f.cfg.Username,
		Auth:            auths,
		HostKeyCallback: hostKeyCB,
		Timeout:         f.cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(f.cfg.Host, fmt.Sprintf("%d", f.cfg.Port))
	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("sftp client: %w", err)
	}

	f.conn = conn
	f.client = client
	return nil
}

// TestConnection verifies connectivity without fetching any files.
func (f *SFTPFetcher) TestConnection(ctx context.Context) (bool, string) {
	if err := f.connect(ctx); err != nil {
		return false, err.Error()
	}
	if _, err := f.client.Getwd(); err != nil {
		return false, fmt.Sprintf("getwd failed: %v", err)
	}
	return true, "ok"
}

// Fetch discovers and downloads matching files per spec §4.6: if
// remote_path is a directory, list it for pattern, plus pattern.* (rotated)
// siblings when IncludeRotated is set; if it is a file, include it plus
// basename.* siblings in its parent. Paths are deduplicated preserving discovery order, then each is
// stat'd and read with bounded retries on network errors.
func (f *SFTPFetcher) Fetch(ctx context.Context) ([]FetchedFile, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * f.cfg.RetryDelay)
		}
		files, err := f.fetchOnce(ctx)
		if err == nil {
			return files, nil
		}
		lastErr = err
		f.logger.Warn().Err(err).Int("attempt", attempt).Msg("sftp fetch attempt failed")
	}
	return nil, fmt.Errorf("sftp fetch exhausted retries: %w", lastErr)
}

func (f *SFTPFetcher) fetchOnce(ctx context.Context) ([]FetchedFile, error) {
	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	paths, err := f.discoverPaths()
	if err != nil {
		return nil, err
	}

	var out []FetchedFile
	for _, p := range paths {
		info, err := f.client.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		rf, err := f.client.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		data, err := readAllClose(rf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}

		name, decompressed := maybeDecompress(path.Base(p), data)
		out = append(out, FetchedFile{Name: name, Data: decompressed, Size: info.Size()})
	}

	return out, nil
}

func (f *SFTPFetcher) discoverPaths() ([]string, error) {
	info, err := f.client.Stat(f.cfg.RemotePath)
	if err != nil {
		return nil, fmt.Errorf("stat remote_path %s: %w", f.cfg.RemotePath, err)
	}

	var dir, base string
	if info.IsDir() {
		dir = f.cfg.RemotePath
		base = f.cfg.Pattern
	} else {
		dir = path.Dir(f.cfg.RemotePath)
		base = path.Base(f.cfg.RemotePath)
	}

	entries, err := f.client.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	if !info.IsDir() {
		add(f.cfg.RemotePath)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if base != "" && matchesPattern(name, base) {
			add(path.Join(dir, name))
			continue
		}
		if (f.cfg.IncludeRotated || !info.IsDir()) && base != "" && strings.HasPrefix(name, base+".") {
			add(path.Join(dir, name))
		}
	}

	return paths, nil
}

func matchesPattern(name, pattern string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

func readAllClose(rf *sftp.File) ([]byte, error) {
	defer rf.Close()
	return io.ReadAll(rf)
}

// Cleanup releases the underlying SSH/SFTP connections.
func (f *SFTPFetcher) Cleanup() error {
	var err error
	if f.client != nil {
		err = f.client.Close()
		f.client = nil
	}
	if f.conn != nil {
		if cerr := f.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		f.conn = nil
	}
	return err
}

var _ Fetcher = (*SFTPFetcher)(nil)
