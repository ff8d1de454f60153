package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/keyfate/keyfate/common"
	"github.com/keyfate/keyfate/interfaces"
	"github.com/keyfate/keyfate/sharevault"
	"github.com/keyfate/keyfate/sharing"
)

var flagVaultDir *cli.StringFlag = &cli.StringFlag{
	Name:  "vault-dir",
	Value: defaultVaultDir(),
	Usage: "directory holding the local share vault",
}

var flagSecretFile *cli.StringFlag = &cli.StringFlag{
	Name:  "secret-file",
	Value: "",
	Usage: "file with the secret to split, '-' for stdin",
}

var flagTotal *cli.IntFlag = &cli.IntFlag{
	Name:  "total-shares",
	Value: 3,
	Usage: "total number of shares to produce (including the server share)",
}

var flagThreshold *cli.IntFlag = &cli.IntFlag{
	Name:  "threshold",
	Value: 2,
	Usage: "number of shares required to reconstruct",
}

var flagPolicy *cli.StringFlag = &cli.StringFlag{
	Name:  "policy",
	Value: string(interfaces.PolicyPerRecipient),
	Usage: "custody policy: 'per-recipient' or 'shared-share'",
}

var flagRecipients *cli.StringFlag = &cli.StringFlag{
	Name:  "recipients",
	Value: "",
	Usage: "comma-separated recipients as name=email pairs",
}

var flagSharesFile *cli.StringFlag = &cli.StringFlag{
	Name:  "shares-file",
	Value: "",
	Usage: "file with one hex-encoded share per line, '-' for stdin",
}

var flagOut *cli.StringFlag = &cli.StringFlag{
	Name:  "out",
	Value: "-",
	Usage: "output file, '-' for stdout",
}

func defaultVaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keyfate"
	}
	return filepath.Join(home, ".keyfate", "shares")
}

func main() {
	logger := common.SetupLogger(&common.LoggingOpts{Service: "keyfate-cli"})

	app := &cli.App{
		Name:  "keyfate",
		Usage: "Split, distribute, and recover secrets client-side",
		Commands: []*cli.Command{
			{
				Name:        "split",
				Usage:       "split a secret into shares",
				Description: "Splits the secret, keeps the non-server shares in the local vault, and prints the server share for upload together with the custody plan.",
				Flags: []cli.Flag{
					flagSecretFile,
					flagTotal,
					flagThreshold,
					flagPolicy,
					flagRecipients,
					flagVaultDir,
				},
				Action: func(cCtx *cli.Context) error {
					secret, err := readInput(cCtx.String(flagSecretFile.Name))
					if err != nil {
						return err
					}
					defer sharing.Wipe(secret)

					total := cCtx.Int(flagTotal.Name)
					threshold := cCtx.Int(flagThreshold.Name)

					recipients, err := parseRecipients(cCtx.String(flagRecipients.Name))
					if err != nil {
						return err
					}
					plan, err := sharing.Plan(total, threshold, recipients, interfaces.CustodyPolicy(cCtx.String(flagPolicy.Name)))
					if err != nil {
						return err
					}

					shares, err := sharing.Split(secret, total, threshold)
					if err != nil {
						return err
					}

					secretID := interfaces.SecretID(uuid.NewString())
					vault, err := sharevault.New(cCtx.String(flagVaultDir.Name), logger)
					if err != nil {
						return err
					}
					if err := vault.Store(secretID, shares[1:], 0); err != nil {
						return err
					}

					fmt.Printf("secret id:    %s\n", secretID)
					fmt.Printf("server share: %s\n", hex.EncodeToString(shares[0]))
					fmt.Printf("threshold:    %d of %d\n", threshold, total)
					fmt.Println("custody plan:")
					for _, a := range plan.Assignments {
						switch a.Holder {
						case interfaces.HolderRecipient:
							fmt.Printf("  share %d -> %s <%s>\n", a.Index, a.Recipient.Name, a.Recipient.Email)
						default:
							fmt.Printf("  share %d -> %s\n", a.Index, a.Holder)
						}
					}
					fmt.Printf("\nlocal shares are vaulted for %s; distribute them with 'keyfate shares show %s'\n", sharevault.DefaultTTL, secretID)
					return nil
				},
			},
			{
				Name:        "recover",
				Usage:       "reconstruct a secret from shares",
				Description: "Combines hex-encoded shares read from a file or stdin and writes the reconstructed secret.",
				Flags: []cli.Flag{
					flagSharesFile,
					flagOut,
				},
				Action: func(cCtx *cli.Context) error {
					data, err := readInput(cCtx.String(flagSharesFile.Name))
					if err != nil {
						return err
					}

					var shares [][]byte
					for _, line := range strings.Split(string(data), "\n") {
						line = strings.TrimSpace(line)
						if line == "" {
							continue
						}
						share, err := hex.DecodeString(line)
						if err != nil {
							return fmt.Errorf("share %q is not valid hex: %w", line, err)
						}
						shares = append(shares, share)
					}

					plaintext, err := sharing.Combine(shares)
					if err != nil {
						return err
					}
					defer sharing.Wipe(plaintext)

					return writeOutput(cCtx.String(flagOut.Name), plaintext)
				},
			},
			{
				Name:  "shares",
				Usage: "manage the local share vault",
				Subcommands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "print the vaulted shares for a secret",
						ArgsUsage: "<secret-id>",
						Flags:     []cli.Flag{flagVaultDir},
						Action: func(cCtx *cli.Context) error {
							if cCtx.NArg() != 1 {
								return fmt.Errorf("expected exactly one secret id")
							}
							vault, err := sharevault.New(cCtx.String(flagVaultDir.Name), logger)
							if err != nil {
								return err
							}

							bundle, err := vault.Load(interfaces.SecretID(cCtx.Args().First()), 0)
							if err != nil {
								return err
							}

							fmt.Printf("secret id:  %s\n", bundle.SecretID)
							fmt.Printf("expires at: %s\n", bundle.ExpiresAt)
							for i, share := range bundle.Shares {
								fmt.Printf("share %d:    %s\n", i+1, share)
							}
							return nil
						},
					},
					{
						Name:      "forget",
						Usage:     "delete the vaulted shares for a secret",
						ArgsUsage: "<secret-id>",
						Flags:     []cli.Flag{flagVaultDir},
						Action: func(cCtx *cli.Context) error {
							if cCtx.NArg() != 1 {
								return fmt.Errorf("expected exactly one secret id")
							}
							vault, err := sharevault.New(cCtx.String(flagVaultDir.Name), logger)
							if err != nil {
								return err
							}
							return vault.Invalidate(interfaces.SecretID(cCtx.Args().First()))
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("input file is required, use '-' for stdin")
	}
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func parseRecipients(s string) ([]interfaces.RecipientRef, error) {
	if s == "" {
		return nil, fmt.Errorf("at least one recipient is required, e.g. --recipients 'Alice=alice@example.com'")
	}
	var recipients []interfaces.RecipientRef
	for _, pair := range strings.Split(s, ",") {
		name, email, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || email == "" {
			return nil, fmt.Errorf("invalid recipient %q, expected name=email", pair)
		}
		recipients = append(recipients, interfaces.RecipientRef{Name: name, Email: email})
	}
	return recipients, nil
}
