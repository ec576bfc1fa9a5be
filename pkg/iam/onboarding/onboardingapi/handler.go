package onboardingapi

import (
	"net/url"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/iam"
	"github.com/Abraxas-365/facilitydir/pkg/iam/auth"
	"github.com/Abraxas-365/facilitydir/pkg/iam/identity"
	"github.com/Abraxas-365/facilitydir/pkg/iam/onboarding"
	"github.com/gofiber/fiber/v2"
)

// Routes are the UI locations the callback redirects to.
type Routes struct {
	SiteURL       string
	SetupPath     string
	ResetPath     string
	LoginPath     string
	SecureCookies bool
}

func (r Routes) target(intent onboarding.Intent) string {
	if intent == onboarding.IntentReset {
		return r.SiteURL + r.ResetPath
	}
	return r.SiteURL + r.SetupPath
}

func (r Routes) loginWithError(code string) string {
	return r.SiteURL + r.LoginPath + "?error=" + url.QueryEscape(code)
}

// OnboardingHandlers exposes the callback and registration over HTTP.
type OnboardingHandlers struct {
	callback     *onboarding.CallbackService
	registration *onboarding.RegistrationService
	routes       Routes
}

func NewOnboardingHandlers(callback *onboarding.CallbackService, registration *onboarding.RegistrationService, routes Routes) *OnboardingHandlers {
	return &OnboardingHandlers{
		callback:     callback,
		registration: registration,
		routes:       routes,
	}
}

// RegisterRoutes mounts /auth/callback and /api/v1/registration.
func (h *OnboardingHandlers) RegisterRoutes(router fiber.Router, mw *auth.TokenMiddleware) {
	router.Get("/auth/callback", h.CallbackCode)
	router.Post("/auth/callback", h.CallbackTokens)
	router.Post("/api/v1/registration", mw.Authenticate(), h.Register)
}

// CallbackCode handles GET /auth/callback?code=&type= and always redirects.
func (h *OnboardingHandlers) CallbackCode(c *fiber.Ctx) error {
	flow := onboarding.ParseFlowType(c.Query("type"))

	out, err := h.callback.ExchangeCode(c.UserContext(), c.Query("code"), flow)
	if err != nil {
		h.clearSession(c)
		return c.Redirect(h.routes.loginWithError(onboarding.CallbackErrorCode(err)), fiber.StatusFound)
	}

	h.setSession(c, out.Session)
	return c.Redirect(h.routes.target(out.Intent), fiber.StatusFound)
}

type tokenCallbackRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Type         string `json:"type"`
}

type callbackResponse struct {
	Intent     onboarding.Intent `json:"intent"`
	RedirectTo string            `json:"redirect_to"`
	Error      string            `json:"error,omitempty"`
}

// CallbackTokens handles POST /auth/callback with tokens read from the URL
// fragment. Rejections are reported in the body, not as HTTP errors.
func (h *OnboardingHandlers) CallbackTokens(c *fiber.Ctx) error {
	var req tokenCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Wrap(err, "Invalid request body", errx.TypeValidation)
	}

	out, err := h.callback.ExchangeTokens(c.UserContext(), req.AccessToken, req.RefreshToken, onboarding.ParseFlowType(req.Type))
	if err != nil {
		h.clearSession(c)
		code := onboarding.CallbackErrorCode(err)
		return c.JSON(callbackResponse{
			Intent:     onboarding.IntentError,
			RedirectTo: h.routes.loginWithError(code),
			Error:      code,
		})
	}

	h.setSession(c, out.Session)
	return c.JSON(callbackResponse{
		Intent:     out.Intent,
		RedirectTo: h.routes.target(out.Intent),
	})
}

// Register handles POST /api/v1/registration.
func (h *OnboardingHandlers) Register(c *fiber.Ctx) error {
	caller, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthorized()
	}

	var req onboarding.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Wrap(err, "Invalid request body", errx.TypeValidation)
	}

	session := &identity.Session{
		AccessToken:  caller.AccessToken,
		RefreshToken: caller.RefreshToken,
	}
	if err := h.registration.Register(c.UserContext(), session, req); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":      "registered",
		"redirect_to": h.routes.SiteURL + "/",
	})
}

func (h *OnboardingHandlers) setSession(c *fiber.Ctx, s *identity.Session) {
	expires := s.ExpiresAt
	if expires.IsZero() {
		expires = time.Now().Add(time.Hour)
	}
	c.Cookie(&fiber.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    s.AccessToken,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.routes.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	if s.RefreshToken != "" {
		c.Cookie(&fiber.Cookie{
			Name:     auth.RefreshTokenCookie,
			Value:    s.RefreshToken,
			Path:     "/",
			Expires:  time.Now().Add(30 * 24 * time.Hour),
			HTTPOnly: true,
			Secure:   h.routes.SecureCookies,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
}

func (h *OnboardingHandlers) clearSession(c *fiber.Ctx) {
	for _, name := range []string{auth.AccessTokenCookie, auth.RefreshTokenCookie} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HTTPOnly: true,
			Secure:   h.routes.SecureCookies,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
}
