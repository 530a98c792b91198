package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "打印生效的配置 (YAML)",
	Long:  "打印合并默认值、配置文件与环境变量之后的配置，默认隐藏密码与密钥。",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRuntime()
		if err != nil {
			return err
		}
		if !showSecrets {
			const masked = "******"
			for _, s := range []*string{
				&cfg.GVM.Password, &cfg.GVM.SSH.Password, &cfg.Index.Password,
				&cfg.Database.MySQL.Password, &cfg.Database.Redis.Password,
				&cfg.Notify.URL, &cfg.Security.JWT.Secret,
			} {
				if *s != "" {
					*s = masked
				}
			}
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "显示密码与密钥")
}
