package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-client/bootstrap"
	"github.com/jrsteele09/go-session-client/gateway"
	"github.com/jrsteele09/go-session-client/permissions"
	"github.com/spf13/cobra"
)

func (a *app) requestCmd() *cobra.Command {
	var data string
	var headers []string
	var noAuth, noRetry bool

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated API request",
		Example: `  authctl request GET /cases
  authctl request POST /cases -d '{"title":"new"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := gateway.Request{
				Method:    strings.ToUpper(args[0]),
				Path:      args[1],
				Header:    http.Header{},
				SkipAuth:  noAuth,
				SkipRetry: noRetry,
			}
			if data != "" {
				req.Body = []byte(data)
				req.Header.Set("Content-Type", "application/json")
			}
			for _, h := range headers {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("header %q is not NAME:VALUE", h)
				}
				req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
			}

			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				resp, err := rt.Gateway.Do(ctx, req)
				if err != nil {
					return describe(err)
				}
				out := cmd.OutOrStdout()
				var pretty bytes.Buffer
				if json.Indent(&pretty, resp.Body, "", "  ") == nil {
					fmt.Fprintln(out, pretty.String())
					return nil
				}
				fmt.Fprintln(out, string(resp.Body))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header NAME:VALUE (repeatable)")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "do not send the bearer token")
	cmd.Flags().BoolVar(&noRetry, "no-retry", false, "do not retry transient failures")

	return cmd
}

func (a *app) guardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guard PATH",
		Short: "Show whether navigation to PATH is allowed for the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				fmt.Fprintln(cmd.OutOrStdout(), rt.Guard.Check(args[0]))
				return nil
			})
		},
	}
}

func (a *app) canCmd() *cobra.Command {
	var feature, action string
	var roles, perms, notPerms []string
	var all bool

	cmd := &cobra.Command{
		Use:   "can",
		Short: "Evaluate a permission check against the signed-in user",
		Example: `  authctl can --feature case --action read
  authctl can --permission CASE_READ --permission CASE_WRITE --all
  authctl can --role ROLE_ADMIN`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := permissions.Rule{}
			if feature != "" {
				rule.Access = &permissions.Access{Feature: feature, Action: action}
			}
			if len(roles) > 0 {
				check := permissions.Any(roles...)
				if all {
					check = permissions.All(roles...)
				}
				rule.Roles = &check
			}
			if len(perms) > 0 || len(notPerms) > 0 {
				check := permissions.Check{Not: notPerms}
				if all {
					check.AllOf = perms
				} else {
					check.AnyOf = perms
				}
				rule.Permissions = &check
			}
			if rule.Access == nil && rule.Roles == nil && rule.Permissions == nil {
				return fmt.Errorf("nothing to check: use --feature, --role or --permission")
			}

			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if rt.Permissions.CheckRule(rule) {
					success(cmd.OutOrStdout(), "allowed")
					return nil
				}
				warn(cmd.OutOrStdout(), "denied")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&feature, "feature", "", "feature name, e.g. case")
	cmd.Flags().StringVar(&action, "action", "", "action on the feature, e.g. read")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "required role")
	cmd.Flags().StringSliceVar(&perms, "permission", nil, "required permission")
	cmd.Flags().StringSliceVar(&notPerms, "not-permission", nil, "permission that must not be held")
	cmd.Flags().BoolVar(&all, "all", false, "require every role/permission instead of any")

	return cmd
}

func (a *app) policyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Show the login methods the service accepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				policy, err := rt.Auth.LoginPolicy(ctx)
				if err != nil {
					return describe(err)
				}
				out := cmd.OutOrStdout()
				success(out, "%s", policy.Name)
				info(out, "Enabled:  %s", strings.Join(policy.EnabledMethods, ", "))
				info(out, "Priority: %s", strings.Join(policy.Priority, ", "))
				return nil
			})
		},
	}
}
