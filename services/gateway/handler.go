package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tenant-gateway/pkg/db/pagination"
	"tenant-gateway/pkg/errutil"
	"tenant-gateway/services/directory"
	"tenant-gateway/services/feature"
	"tenant-gateway/services/schema"
)

type tenantResponse struct {
	ID          string                 `json:"id"`
	Subdomain   string                 `json:"subdomain"`
	CompanyName string                 `json:"company_name"`
	Status      string                 `json:"status"`
	LicenseKey  string                 `json:"license_key"`
	ExpiresAt   *time.Time             `json:"license_expires_at,omitempty"`
	Features    directory.FeatureFlags `json:"features"`
}

type subscriptionResponse struct {
	PlanName        string    `json:"plan_name"`
	MaxUsers        int       `json:"max_users"`
	MaxCustomers    int       `json:"max_customers"`
	MaxTransactions int       `json:"max_transactions"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	AutoRenew       bool      `json:"auto_renew"`
}

type listResponse[T any] struct {
	Data     []*T                 `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// RegisterRoutes mounts the tenant API behind the gateway pipeline.
func RegisterRoutes(r *gin.Engine, g *Gateway) {
	api := r.Group("/api/v1", g.Handler())
	api.GET("/tenant", getTenant)
	api.GET("/tenant/subscription", g.RequireSubscription(), getSubscription)
	api.GET("/portfolios", g.RequireFeature(feature.Portfolio), listPortfolios)
	api.GET("/ipo-applications", g.RequireFeature(feature.IPO), listIPOApplications)
	api.GET("/fees", g.RequireFeature(feature.Fees), listFees)
}

func getTenant(c *gin.Context) {
	sess, _ := SessionFrom(c)
	t, lic := sess.Tenant, sess.Decision.License

	c.JSON(http.StatusOK, tenantResponse{
		ID:          t.ID,
		Subdomain:   t.Subdomain,
		CompanyName: t.CompanyName,
		Status:      string(t.Status),
		LicenseKey:  lic.LicenseKey,
		ExpiresAt:   lic.ExpiresAt,
		Features:    sess.Decision.Features,
	})
}

func getSubscription(c *gin.Context) {
	sess, _ := SessionFrom(c)
	s := sess.Decision.Subscription

	c.JSON(http.StatusOK, subscriptionResponse{
		PlanName:        s.PlanName,
		MaxUsers:        s.MaxUsers,
		MaxCustomers:    s.MaxCustomers,
		MaxTransactions: s.MaxTransactions,
		StartDate:       s.StartDate,
		EndDate:         s.EndDate,
		AutoRenew:       s.AutoRenew,
	})
}

func listPortfolios(c *gin.Context) {
	list(c, "portfolios", func(p *schema.Portfolio) string { return p.ID })
}

func listIPOApplications(c *gin.Context) {
	list(c, "ipo_applications", func(a *schema.IPOApplication) string { return a.ID })
}

func listFees(c *gin.Context) {
	list(c, "fees", func(f *schema.Fee) string { return f.ID })
}

func list[T any](c *gin.Context, model string, extractID func(*T) string) {
	sess, _ := SessionFrom(c)
	m, ok := sess.Handle.Bindings.Model(model)
	if !ok {
		fail(c, errutil.Internal("model not bound: "+model, nil))
		return
	}

	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		fail(c, errutil.BadRequest("invalid pagination", err))
		return
	}
	scope, err := pagination.Scope(p)
	if err != nil {
		fail(c, errutil.BadRequest("invalid cursor", err))
		return
	}

	var rows []*T
	if err := m.DB(c.Request.Context()).Scopes(scope).Find(&rows).Error; err != nil {
		fail(c, &errutil.ConnectivityError{Op: "list " + model, Err: err})
		return
	}

	page, info, err := pagination.Page(rows, p, extractID)
	if err != nil {
		fail(c, errutil.Internal("build page", err))
		return
	}
	if page == nil {
		page = []*T{}
	}

	c.JSON(http.StatusOK, listResponse[T]{Data: page, PageInfo: info})
}
