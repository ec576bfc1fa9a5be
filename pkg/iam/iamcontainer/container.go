package iamcontainer

import (
	"context"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/config"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationapi"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationinfra"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationjobs"
	"github.com/Abraxas-365/facilitydir/pkg/iam/invitation/invitationsrv"
	"github.com/Abraxas-365/facilitydir/pkg/iam/onboarding"
	"github.com/Abraxas-365/facilitydir/pkg/iam/onboarding/onboardingapi"
	"github.com/Abraxas-365/facilitydir/pkg/iam/onboarding/onboardingjobs"
	"github.com/Abraxas-365/facilitydir/pkg/iam/profile/profileinfra"
	"github.com/Abraxas-365/facilitydir/pkg/iam/session"
	"github.com/Abraxas-365/facilitydir/pkg/iam/session/sessionapi"
	"github.com/Abraxas-365/facilitydir/pkg/jobx"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// ---------------------------------------------------------------------------

type Deps struct {
	DB     *sqlx.DB
	Config *config.Config

	// Gateway is the identity provider, remote or in-process.
	Gateway identity.Gateway
	// Tokens verifies the provider's access tokens.
	Tokens auth.TokenService
	// Jobs is optional. Without it no events are published and no purge runs.
	Jobs   *jobx.Client
	Mailer onboardingjobs.Mailer

	// Now overrides the clock of the time-dependent services.
	Now func() time.Time
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// ---------------------------------------------------------------------------

type Container struct {
	InvitationService   *invitationsrv.InvitationService
	CallbackService     *onboarding.CallbackService
	RegistrationService *onboarding.RegistrationService
	RevocationService   *session.RevocationService

	InvitationHandlers *invitationapi.InvitationHandlers
	OnboardingHandlers *onboardingapi.OnboardingHandlers
	SessionHandlers    *sessionapi.SessionHandlers

	AuthMiddleware *auth.TokenMiddleware

	Purger    *invitationjobs.Purger
	Scheduler *invitationjobs.Scheduler
}

// New constructs the IAM dependency graph.
// Order matters: repos → services → handlers → middleware → jobs.
func New(deps Deps) (*Container, error) {
	logx.Info("🔧 Initializing IAM container...")

	cfg := deps.Config
	c := &Container{}

	// ── Repositories ─────────────────────────────────────────────────────

	invitationRepo := invitationinfra.NewSQLInvitationRepository(deps.DB)
	profileRepo := profileinfra.NewSQLProfileRepository(deps.DB)
	facilityRepo := profileinfra.NewSQLFacilityRepository(deps.DB)

	auditService := authinfra.NewLogxAuditService()

	// ── Domain services ──────────────────────────────────────────────────

	c.InvitationService = invitationsrv.NewInvitationService(
		invitationRepo,
		profileRepo,
		deps.Gateway,
		auditService,
		cfg.Onboarding.InviteRedirectURL(),
		cfg.Onboarding.InvitationTTL,
	)

	c.CallbackService = onboarding.NewCallbackService(deps.Gateway, invitationRepo, auditService)

	c.RegistrationService = onboarding.NewRegistrationService(
		deps.Gateway,
		invitationRepo,
		profileRepo,
		facilityRepo,
		auditService,
	)
	if deps.Jobs != nil {
		c.RegistrationService.WithPublisher(deps.Jobs)
	}

	if deps.Now != nil {
		c.InvitationService.WithClock(deps.Now)
		c.CallbackService.WithClock(deps.Now)
		c.RegistrationService.WithClock(deps.Now)
	}

	c.RevocationService = session.NewRevocationService(deps.Gateway, profileRepo, auditService)

	// ── API handlers ─────────────────────────────────────────────────────

	c.InvitationHandlers = invitationapi.NewInvitationHandlers(c.InvitationService)
	c.OnboardingHandlers = onboardingapi.NewOnboardingHandlers(c.CallbackService, c.RegistrationService, onboardingapi.Routes{
		SiteURL:       cfg.Onboarding.SiteURL,
		SetupPath:     cfg.Onboarding.SetupPath,
		ResetPath:     cfg.Onboarding.ResetPath,
		LoginPath:     cfg.Onboarding.LoginPath,
		SecureCookies: cfg.Server.SecureCookies,
	})
	c.SessionHandlers = sessionapi.NewSessionHandlers(c.RevocationService)

	// ── Middleware ────────────────────────────────────────────────────────

	c.AuthMiddleware = auth.NewAuthMiddleware(deps.Tokens, profileRepo)

	// ── Background jobs ──────────────────────────────────────────────────

	c.Purger = invitationjobs.NewPurger(invitationRepo)
	if deps.Jobs != nil {
		c.Purger.Register(deps.Jobs)
		if deps.Mailer != nil {
			onboardingjobs.NewNotifier(profileRepo, deps.Mailer).Register(deps.Jobs)
			logx.Info("  ✅ Registration notifications enabled")
		}

		scheduler, err := invitationjobs.NewScheduler(deps.Jobs, cfg.Jobs.PurgeSchedule)
		if err != nil {
			return nil, err
		}
		c.Scheduler = scheduler
	}

	logx.Info("✅ IAM container initialized")
	return c, nil
}

// RegisterRoutes mounts every IAM endpoint on router.
func (c *Container) RegisterRoutes(router fiber.Router) {
	c.OnboardingHandlers.RegisterRoutes(router, c.AuthMiddleware)
	c.InvitationHandlers.RegisterRoutes(router, c.AuthMiddleware)
	c.SessionHandlers.RegisterRoutes(router, c.AuthMiddleware)
}

// StartBackgroundServices starts the purge schedule. It stops when ctx ends.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	if c.Scheduler == nil {
		return
	}
	c.Scheduler.Start()
	logx.Info("  ✅ Invitation purge scheduled")

	go func() {
		<-ctx.Done()
		c.Scheduler.Stop()
	}()
}
