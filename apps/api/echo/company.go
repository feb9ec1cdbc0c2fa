package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/company"
	"github.com/quizera/backend/core/user"
)

type companyApi struct {
	svc  *company.Service
	conf *core.Config
}

func registerCompanyAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := companyApi{
		svc:  deps.CompanySvc,
		conf: deps.Conf,
	}

	cg := g.Group("/companies")

	// un-authed endpoints
	cg.POST("", api.onboard)
	cg.POST("/signup", api.signup)

	// authed, company-scoped endpoints
	dg := cg.Group("/:id", jwt, companyMemberMiddleware())
	dg.GET("", api.retrieve)
	dg.GET("/settings", api.retrieveSettings, adminMiddleware())
	dg.PUT("/settings", api.updateSettings, adminMiddleware())
	dg.POST("/invitations", api.createInvitation, adminMiddleware())
	dg.GET("/invitations", api.queryInvitations, adminMiddleware())
	dg.DELETE("/invitations/:invID", api.revokeInvitation, adminMiddleware())
}

// Handlers

// onboard creates a Company together with its owner account and logs the
// owner in.
func (api *companyApi) onboard(ctx echo.Context) error {
	var data company.NewCompany
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCompany")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	cpy, owner, err := api.svc.Onboard(data)
	if err != nil {
		return errors.Wrap(err, "onboarding company")
	}

	token, err := GenerateToken(GetUserClaims(owner, api.conf), api.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, OnboardResponse{Company: cpy, Owner: owner, Token: token})
}

// signup redeems an invitation secret into a new member account.
func (api *companyApi) signup(ctx echo.Context) error {
	var data company.RedeemInvitation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RedeemInvitation")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Redeem(data)
	if err != nil {
		return errors.Wrap(err, "redeeming invitation")
	}

	token, err := GenerateToken(GetUserClaims(usr, api.conf), api.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, SignupResponse{User: usr, Token: token})
}

func (api *companyApi) retrieve(ctx echo.Context) error {
	cpy, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == company.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding company by ID")
	}
	return ctx.JSON(http.StatusOK, cpy)
}

func (api *companyApi) retrieveSettings(ctx echo.Context) error {
	cpy, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == company.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding company by ID")
	}
	return ctx.JSON(http.StatusOK, cpy.Settings)
}

func (api *companyApi) updateSettings(ctx echo.Context) error {
	var data company.UpdateSettings
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSettings")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	cpy, err := api.svc.UpdateSettings(ctx.Param("id"), data)
	if err != nil {
		if errors.Cause(err) == company.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating settings")
	}
	return ctx.JSON(http.StatusOK, cpy)
}

func (api *companyApi) createInvitation(ctx echo.Context) error {
	var data company.NewInvitation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvitation")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	inv, err := api.svc.CreateInvitation(ctx.Param("id"), claims.Subject, data)
	if err != nil {
		if errors.Cause(err) == company.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "creating invitation")
	}
	return ctx.JSON(http.StatusCreated, inv)
}

func (api *companyApi) queryInvitations(ctx echo.Context) error {
	invs, err := api.svc.QueryInvitations(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying invitations")
	}
	if invs == nil {
		invs = []company.Invitation{}
	}
	return ctx.JSON(http.StatusOK, invs)
}

func (api *companyApi) revokeInvitation(ctx echo.Context) error {
	// the invitation must belong to the company in the path
	inv, err := api.svc.GetInvitation(ctx.Param("invID"))
	if err != nil || inv.CompanyID != ctx.Param("id") {
		return errHttpNotFound
	}

	if err := api.svc.RevokeInvitation(inv.ID); err != nil {
		return errors.Wrap(err, "revoking invitation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	OnboardResponse struct {
		Company company.Company `json:"company"`
		Owner   user.User       `json:"owner"`
		Token   string          `json:"token"`
	}

	SignupResponse struct {
		User  user.User `json:"user"`
		Token string    `json:"token"`
	}
)
