package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"duckflow/internal/domain"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"creds"},
		Short:   "Manage encrypted storage credentials in the metastore",
	}
	cmd.AddCommand(newCredentialsSetCmd())
	cmd.AddCommand(newCredentialsListCmd())
	cmd.AddCommand(newCredentialsDeleteCmd())
	return cmd
}

func newCredentialsSetCmd() *cobra.Command {
	var (
		cred        domain.StorageCredential
		credType    string
		secretStdin bool
	)

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Create or replace a storage credential",
		Long: "Stores a credential encrypted with ENCRYPTION_KEY. For S3, the secret is read from " +
			"--secret-stdin or prompted for when --key-id is given without one.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cred.Name = args[0]
			cred.CredentialType = domain.CredentialType(strings.ToUpper(credType))

			if cred.CredentialType == domain.CredentialTypeS3 && cred.KeyID != "" && cred.Secret == "" {
				secret, err := readSecret(cmd, secretStdin, "Secret access key: ")
				if err != nil {
					return err
				}
				cred.Secret = secret
			}
			if err := cred.Validate(); err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			saved, err := a.creds.Upsert(cmd.Context(), &cred)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "credential %s saved\n", saved.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&credType, "type", string(domain.CredentialTypeS3), "Credential type (S3, AZURE, GCS)")
	cmd.Flags().StringVar(&cred.KeyID, "key-id", "", "S3 access key ID")
	cmd.Flags().StringVar(&cred.Secret, "secret", "", "S3 secret access key (prefer --secret-stdin)")
	cmd.Flags().BoolVar(&secretStdin, "secret-stdin", false, "Read the S3 secret from stdin")
	cmd.Flags().StringVar(&cred.SessionToken, "session-token", "", "S3 session token")
	cmd.Flags().StringVar(&cred.Region, "region", "", "S3 region")
	cmd.Flags().StringVar(&cred.Endpoint, "endpoint", "", "S3-compatible endpoint")
	cmd.Flags().StringVar(&cred.URLStyle, "url-style", "", "S3 URL style (path or vhost)")
	cmd.Flags().StringVar(&cred.AzureAccountName, "azure-account-name", "", "Azure storage account name")
	cmd.Flags().StringVar(&cred.AzureAccountKey, "azure-account-key", "", "Azure storage account key")
	cmd.Flags().StringVar(&cred.GCSKeyFilePath, "gcs-key-file", "", "GCS service account key file")
	return cmd
}

// readSecret reads one line from stdin, prompting without echo when stdin is a terminal.
func readSecret(cmd *cobra.Command, fromStdin bool, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // fd fits in int
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	if !fromStdin {
		return "", nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func newCredentialsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List storage credentials without their secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			creds, _, err := a.creds.List(cmd.Context(), domain.PageRequest{MaxResults: domain.MaxMaxResults})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				items := make([]map[string]any, 0, len(creds))
				for _, c := range creds {
					items = append(items, map[string]any{
						"name":            c.Name,
						"credential_type": c.CredentialType,
						"key_id":          c.KeyID,
						"region":          c.Region,
						"endpoint":        c.Endpoint,
						"has_secret":      c.Secret != "" || c.AzureAccountKey != "",
						"updated_at":      c.UpdatedAt,
					})
				}
				return PrintJSON(out, map[string]any{"credentials": items})
			}

			rows := make([][]string, 0, len(creds))
			for _, c := range creds {
				rows = append(rows, []string{c.Name, string(c.CredentialType), c.KeyID, c.Region, formatTime(&c.UpdatedAt)})
			}
			PrintTable(out, []string{"name", "type", "key_id", "region", "updated_at"}, rows)
			return nil
		},
	}
}

func newCredentialsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a storage credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if err := a.creds.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "credential %s deleted\n", args[0])
			return nil
		},
	}
}
