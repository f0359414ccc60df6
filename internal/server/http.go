package server

import (
	stdhttp "net/http"
	"time"

	"groupguard/internal/conf"
	"groupguard/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer creates the HTTP server exposing the admin surface and
// the message check endpoint.
func NewHTTPServer(c *conf.Server, admin *service.AdminService, filter *service.FilterService, logger log.Logger) *http.Server {
	opts := []http.ServerOption{
		http.Middleware(recovery.Recovery()),
		http.Logger(logger),
	}
	if c.HTTP.Network != "" {
		opts = append(opts, http.Network(c.HTTP.Network))
	}
	if c.HTTP.Addr != "" {
		opts = append(opts, http.Address(c.HTTP.Addr))
	}
	if c.HTTP.TimeoutSeconds > 0 {
		opts = append(opts, http.Timeout(time.Duration(c.HTTP.TimeoutSeconds)*time.Second))
	}
	srv := http.NewServer(opts...)

	r := srv.Route("/v1")

	r.POST("/rules/text", func(ctx http.Context) error {
		var req service.AddTextRulesRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := admin.AddTextRules(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, reply)
	})

	r.POST("/rules/image", func(ctx http.Context) error {
		var req service.AddImageRuleRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := admin.AddImageRule(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, reply)
	})

	r.DELETE("/rules", func(ctx http.Context) error {
		var req service.RemoveRulesRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := admin.RemoveRules(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, reply)
	})

	r.GET("/rules/image", func(ctx http.Context) error {
		var req service.GetRuleImageRequest
		if err := ctx.BindQuery(&req); err != nil {
			return err
		}
		reply, err := admin.GetRuleImage(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, reply)
	})

	r.GET("/rules", func(ctx http.Context) error {
		var req service.ListRulesRequest
		if err := ctx.BindQuery(&req); err != nil {
			return err
		}
		reply, err := admin.ListRules(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, reply)
	})

	r.POST("/messages/check", func(ctx http.Context) error {
		var req service.CheckMessageRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := filter.CheckMessage(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, reply)
	})

	return srv
}
