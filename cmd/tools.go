package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wecomCmder/internal/user"
	"wecomCmder/internal/wecom"
)

const encodingAESKeyLength = 43

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "生成 admin.password_hash 使用的 bcrypt 哈希",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := user.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var verifyKeyCmd = &cobra.Command{
	Use:   "verify-key <encoding_aes_key>",
	Short: "检查 EncodingAESKey 是否可用",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := verifyKey(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "EncodingAESKey 有效")
		return nil
	},
}

var syncMenuCmd = &cobra.Command{
	Use:   "sync-menu",
	Short: "按当前命令生成菜单并推送到企业微信",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		client, err := a.manager.Client()
		if err != nil {
			return err
		}
		menu, err := a.registry.SyncMenu(ctx, client)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "菜单同步成功，共 %d 个菜单项\n", menu.Count())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd, verifyKeyCmd, syncMenuCmd)
}

func verifyKey(key string) error {
	if len(key) != encodingAESKeyLength {
		return fmt.Errorf("%w: 长度为 %d，应为 %d", wecom.ErrKeyInvalid, len(key), encodingAESKeyLength)
	}
	_, err := wecom.DecodeAESKey(key)
	return err
}
