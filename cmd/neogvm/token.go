package main

import (
	"fmt"
	"time"

	"neogvm/internal/pkg/auth"

	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenScopes  []string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发 API 访问令牌",
	Long: `使用配置中的 security.jwt.secret 签发 HS256 令牌，供调用 /api/v1/gvm 接口。
可用权限范围: scan, pipeline, *；不指定时令牌拥有全部权限。`,
	Example: "  neogvm token --subject ops --scope pipeline --ttl 720h",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRuntime()
		if err != nil {
			return err
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Security.JWT.AccessTokenExpire
		}

		m := auth.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, ttl)
		token, err := m.GenerateToken(tokenSubject, tokenScopes)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "neogvm-cli", "令牌主体")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "权限范围，可重复")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "有效期，默认取 security.jwt.access_token_expire")
}
