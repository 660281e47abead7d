// Package presets builds ready-to-use services for common setups.
package presets

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/tendant/simple-qa/pkg/simpleqa"
	"github.com/tendant/simple-qa/pkg/simpleqa/config"
	memoryrepo "github.com/tendant/simple-qa/pkg/simpleqa/repo/memory"
	fsstorage "github.com/tendant/simple-qa/pkg/simpleqa/storage/fs"
	memorystorage "github.com/tendant/simple-qa/pkg/simpleqa/storage/memory"
	"golang.org/x/crypto/bcrypt"
)

// Credentials of the user seeded by WithTestFixtures
const (
	FixtureUsername = "fixture@example.com"
	FixturePassword = "fixture-password"
)

// NewDevelopment creates a service for local development: an in-memory
// database and attachments on disk under ./dev-data.
//
// The returned cleanup function removes the storage directory.
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (simpleqa.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fsBackend, err := fsstorage.New(fsstorage.Config{BaseDir: cfg.storageDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	svc, err := simpleqa.New(
		simpleqa.WithRepository(memoryrepo.New()),
		simpleqa.WithBlobStore(fsBackend),
		simpleqa.WithEventSink(simpleqa.NewLoggingEventSink(nil)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates an isolated in-memory service for tests. Passwords are
// hashed at the lowest bcrypt cost.
func NewTesting(t *testing.T, opts ...TestingOption) simpleqa.Service {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	svc, err := simpleqa.New(
		simpleqa.WithRepository(memoryrepo.New()),
		simpleqa.WithBlobStore(memorystorage.New()),
		simpleqa.WithBcryptCost(bcrypt.MinCost),
	)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}

	if cfg.fixtures {
		_, err := svc.CreateUser(context.Background(), simpleqa.CreateUserRequest{
			FirstName: "Fixture",
			LastName:  "User",
			Username:  FixtureUsername,
			Password:  FixturePassword,
		})
		if err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
	}
	return svc
}

// NewProduction builds the service from the environment and insists on
// persistent stores: Postgres for metadata and fs or s3 for attachments.
// Options are applied after the environment.
func NewProduction(ctx context.Context, opts ...config.Option) (*config.Components, error) {
	options := append([]config.Option{config.WithEnv()}, opts...)
	cfg, err := config.Load(options...)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseType != "postgres" {
		return nil, fmt.Errorf("production preset requires a postgres DATABASE_URL, got %q", cfg.DatabaseType)
	}
	if cfg.Storage.Type == "memory" {
		return nil, fmt.Errorf("production preset requires persistent storage (s3 or fs, not memory)")
	}

	return cfg.Build(ctx, cfg.NewLogger())
}

type devConfig struct {
	storageDir string
}

type testConfig struct {
	fixtures bool
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures seeds a user with FixtureUsername and FixturePassword
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}
