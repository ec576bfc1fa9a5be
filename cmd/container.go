// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, mail, identity
// provider) and composes bounded-context containers.
package main

import (
	"context"
	"fmt"

	"github.com/Abraxas-365/facilitydir/pkg/config"
	"github.com/Abraxas-365/facilitydir/pkg/dbx"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity/identityhttp"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity/identitymem"
	"github.com/Abraxas-365/facilitydir/pkg/jobx"
	"github.com/Abraxas-365/facilitydir/pkg/jobx/jobxmem"
	"github.com/Abraxas-365/facilitydir/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/Abraxas-365/facilitydir/pkg/notifx"
	"github.com/Abraxas-365/facilitydir/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/facilitydir/pkg/notifx/notifxsendgrid"
	"github.com/Abraxas-365/facilitydir/pkg/notifx/notifxses"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB      *sqlx.DB
	Redis   *redis.Client
	Jobs    *jobx.Client
	Mailer  *notifx.Client
	Tokens  *auth.JWTService
	Gateway identity.Gateway

	// Bounded-context containers
	IAM *iamcontainer.Container
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	if err := c.initInfrastructure(ctx); err != nil {
		c.Cleanup()
		return nil, err
	}
	if err := c.initModules(); err != nil {
		c.Cleanup()
		return nil, err
	}

	logx.Info("✅ Application container initialized")
	return c, nil
}

// ---------------------------------------------------------------------------
// Infrastructure
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure(ctx context.Context) error {
	logx.Info("🏗️ Initializing infrastructure...")

	// 1. Database
	db, err := dbx.Open(ctx, c.Config.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	c.DB = db
	logx.Infof("  ✅ Database connected (%s)", c.Config.Database.Driver)

	if c.Config.Database.Migrate {
		if err := dbx.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logx.Info("  ✅ Schema applied")
	}

	// 2. Job queue
	if err := c.initJobs(ctx); err != nil {
		return err
	}

	// 3. Mail
	if err := c.initMailer(ctx); err != nil {
		return err
	}

	// 4. Identity provider
	c.Tokens = auth.NewJWTService(c.Config.Identity.JWTSecret, c.Config.Identity.AccessTTL, c.Config.Identity.JWTIssuer)
	c.initIdentity()

	logx.Info("✅ Infrastructure initialized")
	return nil
}

func (c *Container) initJobs(ctx context.Context) error {
	if !c.Config.Jobs.Enabled {
		logx.Warn("  ⚠️  Background jobs disabled")
		return nil
	}

	var queue jobx.Queue
	switch c.Config.Jobx.Backend {
	case "redis":
		rdb, err := jobxredis.Connect(ctx, c.Config.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		c.Redis = rdb
		queue = jobxredis.NewRedisQueue(rdb, c.Config.Jobx.Prefix)
		logx.Info("  ✅ Redis job queue connected")
	case "memory":
		queue = jobxmem.New()
		logx.Warn("  ⚠️  Using in-memory job queue (jobs are lost on restart)")
	default:
		return fmt.Errorf("unknown jobx backend %q", c.Config.Jobx.Backend)
	}

	c.Jobs = jobx.NewClient(queue, jobx.FromConfig(c.Config.Jobx))
	return nil
}

func (c *Container) initMailer(ctx context.Context) error {
	var provider notifx.EmailSender
	switch c.Config.Notifx.Provider {
	case "ses":
		ses, err := notifxses.NewFromRegion(ctx, c.Config.Notifx.AWSRegion)
		if err != nil {
			return fmt.Errorf("ses: %w", err)
		}
		provider = ses
		logx.Infof("  ✅ SES mail provider configured (region: %s)", c.Config.Notifx.AWSRegion)
	case "sendgrid":
		provider = notifxsendgrid.NewFromAPIKey(c.Config.Notifx.SendGridAPIKey)
		logx.Info("  ✅ SendGrid mail provider configured")
	default:
		provider = notifxconsole.NewConsoleProvider()
		logx.Warn("  ⚠️  Using console mail provider (emails are only logged)")
	}

	c.Mailer = notifx.NewClient(provider, c.Config.Notifx.FromAddress, c.Config.Notifx.FromName)
	return nil
}

func (c *Container) initIdentity() {
	if c.Config.Identity.Provider == "memory" {
		c.Gateway = identitymem.New(c.Tokens, identitymem.WithMailer(c.Mailer))
		logx.Warn("  ⚠️  Using in-memory identity provider (not for production)")
		return
	}

	c.Gateway = identityhttp.New(c.Config.Identity.BaseURL, identityhttp.FromConfig(c.Config.Identity))
	if c.Config.Identity.ServiceKey == "" {
		logx.Warn("  ⚠️  No identity service key: session revocation and password setup are unavailable")
	}
	logx.Infof("  ✅ Identity provider configured (%s)", c.Config.Identity.BaseURL)
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() error {
	logx.Info("📦 Initializing modules...")

	iam, err := iamcontainer.New(iamcontainer.Deps{
		DB:      c.DB,
		Config:  c.Config,
		Gateway: c.Gateway,
		Tokens:  c.Tokens,
		Jobs:    c.Jobs,
		Mailer:  c.Mailer,
	})
	if err != nil {
		return fmt.Errorf("iam: %w", err)
	}
	c.IAM = iam
	return nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices runs the job workers and schedules until ctx ends.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("🔄 Starting background services...")

	if c.Jobs != nil {
		go func() {
			if err := c.Jobs.Start(ctx); err != nil {
				logx.WithError(err).Error("Job workers stopped")
			}
		}()
	}
	c.IAM.StartBackgroundServices(ctx)
}

// Ping checks the stores the server depends on.
func (c *Container) Ping(ctx context.Context) map[string]error {
	checks := map[string]error{
		"db": c.DB.PingContext(ctx),
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.Ping(ctx).Err()
	}
	return checks
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
