package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxvalleyai/website/auth"
	"github.com/foxvalleyai/website/internal/logutil"
	"github.com/foxvalleyai/website/internal/uuid"
	"github.com/foxvalleyai/website/storage"
)

const minAdminPasswordLen = 8

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create or reset an administrator account",
	Long: `Prompts for a username, password, display name and optional email and
stores an admin account. When the username already exists its password and
name are replaced and it is made an admin; its existing sessions are revoked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger := logutil.Must(cfg.Log.Level, cfg.Log.Format)
		ctx := logutil.WithLogger(cmd.Context(), logger)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== Fox Valley AI admin account setup ===")
		in, err := promptAdmin(bufio.NewReader(cmd.InOrStdin()), out)
		if err != nil {
			return err
		}

		repo, err := openRepository(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer repo.Close()

		acct, err := seedAdmin(ctx, repo, auth.NewHasher(auth.WithCost(cfg.Auth.BcryptCost)), in)
		if err != nil {
			return fmt.Errorf("failed to create admin account: %w", err)
		}
		fmt.Fprintf(out, "\nAdmin account ready.\n  Username: %s\n  Role: %s\n", acct.Username, acct.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedAdminCmd)
	addCommonFlags(seedAdminCmd)
}

type adminInput struct {
	Username string
	Password string
	Name     string
	Email    string
}

func (in adminInput) validate() error {
	if in.Username == "" || in.Password == "" || in.Name == "" {
		return errors.New("username, password, and name are required")
	}
	if len(in.Password) < minAdminPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minAdminPasswordLen)
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return fmt.Errorf("invalid email: %w", err)
		}
	}
	return nil
}

// promptAdmin reads the account details. The password is read without echo
// when stdin is a terminal, and as a plain line otherwise.
func promptAdmin(reader *bufio.Reader, w io.Writer) (adminInput, error) {
	var in adminInput
	var err error
	if in.Username, err = promptLine(reader, w, "Admin username: "); err != nil {
		return in, err
	}
	if in.Password, err = promptPassword(reader, w, "Admin password (min 8 chars): "); err != nil {
		return in, err
	}
	if in.Name, err = promptLine(reader, w, "Display name: "); err != nil {
		return in, err
	}
	if in.Email, err = promptLine(reader, w, "Email (optional, press Enter to skip): "); err != nil {
		return in, err
	}
	return in, in.validate()
}

func promptLine(reader *bufio.Reader, w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(reader *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(reader, w, prompt)
	}
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(pw)), nil
}

// seedAdmin hashes the password and upserts the admin account.
func seedAdmin(ctx context.Context, repo storage.AccountStore, hasher *auth.Hasher, in adminInput) (*storage.Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}
	return repo.UpsertAdmin(ctx, &storage.Account{
		OpenID:       uuid.New(),
		Username:     in.Username,
		PasswordHash: hash,
		Name:         in.Name,
		Email:        in.Email,
		LoginMethod:  storage.LoginMethodLocal,
	})
}
