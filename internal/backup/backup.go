// Package backup takes encrypted snapshots of the SQLite database and keeps
// them in S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const keyTimeLayout = "20060102T150405Z"

var ErrDisabled = errors.New("backups are not configured")

// s3Client is the subset of the S3 API the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

type Config struct {
	S3         S3Config
	Passphrase string
	Prefix     string
	Interval   time.Duration
	Retention  time.Duration
}

// Enabled reports whether enough is configured to upload snapshots.
func (c Config) Enabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != "" && c.Passphrase != ""
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Manager snapshots the database on an interval and prunes snapshots older
// than the retention period.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	db       *sql.DB
	client   s3Client
	status   Status
	onResult func(ok bool)
	now      func() time.Time
	logger   *slog.Logger
}

func NewManager(cfg Config, db *sql.DB, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		db:       db,
		status:   Status{State: StateDisabled},
		onResult: func(bool) {},
		now:      time.Now,
		logger:   logger,
	}
	if cfg.Enabled() {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// OnResult registers fn to be told whether each snapshot succeeded.
func (m *Manager) OnResult(fn func(ok bool)) {
	m.mu.Lock()
	m.onResult = fn
	m.mu.Unlock()
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Run snapshots and prunes every Interval until ctx is done. It returns
// immediately when backups are disabled.
func (m *Manager) Run(ctx context.Context) {
	if m.client == nil {
		m.logger.Info("backups disabled")
		return
	}
	m.logger.Info("backups enabled", "bucket", m.cfg.S3.Bucket, "interval", m.cfg.Interval, "retention", m.cfg.Retention)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Snapshot(ctx); err != nil {
				m.logger.Error("scheduled backup failed", "error", err)
				continue
			}
			if _, err := m.Prune(ctx); err != nil {
				m.logger.Error("prune backups failed", "error", err)
			}
		}
	}
}

func (m *Manager) objectKey(t time.Time) string {
	return m.cfg.Prefix + "larder-" + t.UTC().Format(keyTimeLayout) + ".db.enc"
}

// Snapshot copies the database with VACUUM INTO, encrypts the copy and
// uploads it. It returns the object key.
func (m *Manager) Snapshot(ctx context.Context) (key string, err error) {
	if m.client == nil {
		return "", ErrDisabled
	}

	m.mu.Lock()
	if m.status.State == StateRunning {
		m.mu.Unlock()
		return "", errors.New("backup already running")
	}
	prev := m.status
	m.status.State = StateRunning
	hook := m.onResult
	m.mu.Unlock()

	defer func() {
		hook(err == nil)
		if err != nil {
			prev.State, prev.Error = StateError, err.Error()
			m.setStatus(prev)
			return
		}
		now := m.now()
		m.setStatus(Status{State: StateIdle, LastBackup: &now, LastKey: key})
	}()

	dir, err := os.MkdirTemp("", "larder-backup-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	copyPath := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, copyPath); err != nil {
		return "", fmt.Errorf("vacuum into: %w", err)
	}
	plaintext, err := os.ReadFile(copyPath)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}

	sealed, err := Encrypt(plaintext, m.cfg.Passphrase)
	if err != nil {
		return "", err
	}

	key = m.objectKey(m.now())
	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	}); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	m.logger.Info("backup uploaded", "key", key, "bytes", len(sealed))
	return key, nil
}

// Prune deletes snapshots under the prefix older than Retention and returns
// how many were removed. A zero Retention keeps everything.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	if m.client == nil {
		return 0, ErrDisabled
	}
	if m.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := m.now().Add(-m.cfg.Retention)

	var stale []string
	pages := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Prefix: aws.String(m.cfg.Prefix + "larder-"),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list snapshots: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				stale = append(stale, aws.ToString(obj.Key))
			}
		}
	}

	deleted := 0
	for _, key := range stale {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete snapshot failed", "key", key, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		m.logger.Info("pruned backups", "count", deleted)
	}
	return deleted, nil
}

// Fetch downloads and decrypts a snapshot. The result is a complete SQLite
// database file.
func (m *Manager) Fetch(ctx context.Context, key string) ([]byte, error) {
	if m.client == nil {
		return nil, ErrDisabled
	}
	if !strings.HasPrefix(key, m.cfg.Prefix) {
		key = m.cfg.Prefix + key
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download snapshot: %w", err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Decrypt(sealed, m.cfg.Passphrase)
}
