package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"caixa/backend/internal/auth"
	"caixa/backend/internal/bootstrap"
	"caixa/backend/internal/config"
)

func newHashPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for a password read from --password or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plain, err := passwordInput(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			hashed, err := auth.HashPassword(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password to hash (read from stdin when omitted)")
	return cmd
}

func newCreateUserCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an operator account in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}
			plain, err := passwordInput(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withBackend(cmd, func(ctx context.Context, _ config.Config, _ *time.Location, backend *bootstrap.Backend) error {
				if backend.Driver == config.DriverMemory {
					warn(cmd.ErrOrStderr(), "memory driver: the account disappears when this command exits")
				}
				created, err := bootstrap.SeedUser(ctx, backend.Repo, username, plain)
				if err != nil {
					return err
				}
				if !created {
					return fmt.Errorf("user %q already exists", username)
				}
				success(cmd.OutOrStdout(), "user %s created", strings.ToLower(strings.TrimSpace(username)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password or existing hash (read from stdin when omitted)")
	return cmd
}

// passwordInput returns flag when set, otherwise the first line of in.
func passwordInput(flag string, in io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}
