package authstate

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
)

// SessionControllerRoutes names the paths the controller mounts.
type SessionControllerRoutes struct {
	Login     string
	Logout    string
	Agreement string
}

// SessionControllerViews names the templates the controller renders.
type SessionControllerViews struct {
	Login     string
	Agreement string
}

// SessionController exposes the state machine over HTTP: sign-in with inline
// validation errors, sign-out, and the agreement-review flow.
type SessionController struct {
	Logger  Logger
	Machine *StateMachine
	Guard   *RouteGuard
	Routes  *SessionControllerRoutes
	Views   *SessionControllerViews
}

// SessionControllerOption customizes controller construction.
type SessionControllerOption func(*SessionController) *SessionController

func WithControllerLogger(logger Logger) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRoutes(routes *SessionControllerRoutes) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func WithControllerViews(views *SessionControllerViews) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if views != nil {
			c.Views = views
		}
		return c
	}
}

func NewSessionController(machine *StateMachine, guard *RouteGuard, opts ...SessionControllerOption) *SessionController {
	c := &SessionController{
		Logger:  defLogger{},
		Machine: machine,
		Guard:   guard,
		Routes: &SessionControllerRoutes{
			Login:     "/login",
			Logout:    "/logout",
			Agreement: "/agreement-review",
		},
		Views: &SessionControllerViews{
			Login:     "login",
			Agreement: "agreement_review",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Machine == nil {
		panic("Missing StateMachine in session controller...")
	}

	if c.Guard == nil {
		panic("Missing RouteGuard in session controller...")
	}

	return c
}

// RegisterSessionRoutes mounts the controller's handlers on the app.
func RegisterSessionRoutes[T any](app router.Router[T], machine *StateMachine, guard *RouteGuard, opts ...SessionControllerOption) *SessionController {
	controller := NewSessionController(machine, guard, opts...)

	app.Get(controller.Routes.Login, controller.LoginShow).SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).SetName("sign-in.post")
	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")
	app.Get(controller.Routes.Agreement, controller.AgreementShow).SetName("agreement.get")
	app.Post(controller.Routes.Agreement, controller.AgreementAccept).SetName("agreement.post")

	return controller
}

func (a *SessionController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// SignInRequest payload
type SignInRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r SignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *SessionController) LoginPost(ctx router.Context) error {
	payload := new(SignInRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("LoginPost bind error: %v", err)
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"errors": map[string]string{"form": "Unable to read form"},
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": err.Error(),
		})
	}

	_, err := a.Machine.SignIn(ctx.Context(), Credentials{
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		// Credential failures render inline; nothing was persisted.
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"authentication": "Invalid email or password"},
		})
	}

	redirect := a.Guard.IntendedRoute(ctx, "/")
	return ctx.Redirect(redirect, http.StatusSeeOther)
}

func (a *SessionController) LogOut(ctx router.Context) error {
	a.Machine.SignOut(ctx.Context())
	return ctx.Redirect("/", http.StatusSeeOther)
}

func (a *SessionController) AgreementShow(ctx router.Context) error {
	state := a.Machine.Current()
	return ctx.Render(a.Views.Agreement, router.ViewContext{
		"agreement": state.Agreement,
		"identity":  state.Identity,
	})
}

// AcceptAgreementRequest payload
type AcceptAgreementRequest struct {
	Version int `form:"version" json:"version"`
}

// Validate will run validation rules
func (r AcceptAgreementRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Version,
			validation.Required,
			validation.Min(1),
		),
	)
}

func (a *SessionController) AgreementAccept(ctx router.Context) error {
	payload := new(AcceptAgreementRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("AgreementAccept bind error: %v", err)
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Agreement, router.ViewContext{
			"errors": map[string]string{"form": "Unable to read form"},
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Agreement, router.ViewContext{
			"errors": map[string]string{"version": "Invalid agreement version"},
		})
	}

	state, err := a.Machine.AcceptAgreement(ctx.Context(), payload.Version)
	if err != nil {
		a.Logger.Error("AgreementAccept error: %v", err)
		return ctx.Render(a.Views.Agreement, router.ViewContext{
			"agreement": state.Agreement,
			"errors":    map[string]string{"agreement": "Unable to record acceptance, try again"},
		})
	}

	redirect := a.Guard.IntendedRoute(ctx, "/")
	return ctx.Redirect(redirect, http.StatusSeeOther)
}
