package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/auth"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/config"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/users"
)

type hashPasswordConfig struct {
	password string
	cost     int
}

// newHashPasswordCmd は bcrypt ハッシュを出力するサブコマンドを作成します。
func newHashPasswordCmd() *cobra.Command {
	cfg := &hashPasswordConfig{}

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "パスワードの bcrypt ハッシュを出力します",
		Long: `パスワードの bcrypt ハッシュを出力します。
--password を省略した場合は標準入力の 1 行目を使います。コストは 10 未満にはなりません。`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHashPassword(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.password, "password", "", "ハッシュ化するパスワード")
	cmd.Flags().IntVar(&cfg.cost, "cost", 0, "bcrypt コスト（0 は BCRYPT_COST）")

	return cmd
}

func runHashPassword(cmd *cobra.Command, hc *hashPasswordConfig) error {
	password := hc.password
	if password == "" {
		line, err := readLine(cmd)
		if err != nil {
			return err
		}
		password = line
	}
	if password == "" {
		return errors.New("password is empty")
	}

	cost := hc.cost
	if cost == 0 {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cost = cfg.EffectiveBcryptCost()
	}

	cred := auth.NewCredential(auth.HashConfig{Cost: cost, Workers: 1})
	hash, err := cred.Hash(cmd.Context(), password)
	if err != nil {
		return err
	}
	if !auth.MeetsRequirements(password) {
		cmd.PrintErrln("warning: password does not meet the strength requirements")
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func readLine(cmd *cobra.Command) (string, error) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", nil
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

type createUserConfig struct {
	email    string
	name     string
	password string
	roles    []string
}

// newCreateUserCmd はユーザーを登録するサブコマンドを作成します。
func newCreateUserCmd() *cobra.Command {
	cfg := &createUserConfig{}

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "ユーザーを Redis に登録します",
		Long: `ユーザーを Redis のユーザーストアに登録します。
--role は eventId:role の形式で複数指定できます。`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreateUser(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.email, "email", "", "メールアドレス（必須）")
	cmd.Flags().StringVar(&cfg.name, "name", "", "表示名")
	cmd.Flags().StringVar(&cfg.password, "password", "", "パスワード（省略時は標準入力）")
	cmd.Flags().StringArrayVar(&cfg.roles, "role", nil, "イベントのロール eventId:role")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runCreateUser(cmd *cobra.Command, uc *createUserConfig) error {
	roles, err := parseRoles(uc.roles)
	if err != nil {
		return err
	}

	password := uc.password
	if password == "" {
		if password, err = readLine(cmd); err != nil {
			return err
		}
	}
	if !auth.MeetsRequirements(password) {
		return errors.New("password must be at least 8 characters and contain an uppercase letter and a digit")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.UserStore != config.UserStoreRedis {
		return fmt.Errorf("create-user requires USER_STORE=%s", config.UserStoreRedis)
	}

	ctx := cmd.Context()
	rdb, err := newRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	cred := auth.NewCredential(auth.HashConfig{Cost: cfg.EffectiveBcryptCost(), Workers: 1})
	hash, err := cred.Hash(ctx, password)
	if err != nil {
		return err
	}

	user := &auth.User{
		Email:        uc.email,
		Name:         uc.name,
		PasswordHash: hash,
		Roles:        roles,
	}
	if err := users.NewRedisStore(rdb).Create(ctx, user); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return fmt.Errorf("%s is already registered", auth.NormalizeEmail(uc.email))
		}
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), user.ID)
	return nil
}

// parseRoles は eventId:role 形式の指定を解釈します。
func parseRoles(specs []string) ([]auth.Role, error) {
	roles := make([]auth.Role, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		eventID, name, ok := strings.Cut(spec, ":")
		eventID = strings.TrimSpace(eventID)
		name = strings.TrimSpace(name)
		if !ok || eventID == "" || name == "" {
			return nil, fmt.Errorf("invalid role %q, want eventId:role", spec)
		}
		if _, dup := seen[eventID]; dup {
			return nil, fmt.Errorf("duplicate role for event %q", eventID)
		}
		seen[eventID] = struct{}{}
		roles = append(roles, auth.Role{EventID: eventID, Name: name})
	}
	return roles, nil
}
