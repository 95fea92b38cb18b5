package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluefermion/reviews/internal/middleware"
	"github.com/bluefermion/reviews/internal/model"
)

var (
	tokenPlan string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a dashboard API token",
	Long: `Issue a signed bearer token for the dashboard API. Sign-in lives outside
this service; the token is for operators and for the auth gateway that
fronts the dashboard.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch tokenPlan {
		case model.PlanFree, model.PlanPro:
		default:
			return fmt.Errorf("plan must be %s or %s", model.PlanFree, model.PlanPro)
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
		tok, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), args[0], tokenPlan, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenPlan, "plan", model.PlanFree, "plan claim (free or pro)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}
