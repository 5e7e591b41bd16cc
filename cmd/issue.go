package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/certpilot/certpilot/challenge"
	"github.com/certpilot/certpilot/client"
	"github.com/certpilot/certpilot/dns"
	"github.com/certpilot/certpilot/imap"
	"github.com/certpilot/certpilot/install"
	"github.com/certpilot/certpilot/issuance"
	"github.com/certpilot/certpilot/pki"
)

type IssueConfig struct {
	Domains            []string      `mapstructure:"domains"`
	Contact            string        `mapstructure:"contact"`
	AcceptTOS          bool          `mapstructure:"accept_tos"`
	TOSURI             string        `mapstructure:"tos_uri"`
	AcceptInstructions bool          `mapstructure:"accept_instructions"`
	BundlePassword     string        `mapstructure:"bundle_password"`
	Store              string        `mapstructure:"store"`
	InstallSite        string        `mapstructure:"install_site"`
	InstallBinding     string        `mapstructure:"install_binding"`
	OutDir             string        `mapstructure:"out_dir"`
	KeyType            string        `mapstructure:"key_type"`
	Challenge          string        `mapstructure:"challenge"`
	Webroot            string        `mapstructure:"webroot"`
	DNSConfig          string        `mapstructure:"dns_config"`
	ImapHost           string        `mapstructure:"imap_host"`
	ImapPort           int           `mapstructure:"imap_port"`
	ImapUsername       string        `mapstructure:"imap_username"`
	ImapPassword       string        `mapstructure:"imap_password"`
	StoreDir           string        `mapstructure:"store_dir"`
	BindingsFile       string        `mapstructure:"bindings_file"`
	PostCommand        string        `mapstructure:"post_command"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	TOTPSeed           string        `mapstructure:"totp_seed"`
	Insecure           bool          `mapstructure:"insecure"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RefreshInterval    time.Duration `mapstructure:"refresh_interval"`
	JSON               bool          `mapstructure:"json"`
}

var (
	issueConfig IssueConfig
	configPath  string
	keyMapping  = map[string]string{
		"domains":             "domains",
		"contact":             "contact",
		"accept-tos":          "accept_tos",
		"tos-uri":             "tos_uri",
		"accept-instructions": "accept_instructions",
		"bundle-password":     "bundle_password",
		"store":               "store",
		"install-site":        "install_site",
		"install-binding":     "install_binding",
		"out-dir":             "out_dir",
		"key-type":            "key_type",
		"challenge":           "challenge",
		"webroot":             "webroot",
		"dns-config":          "dns_config",
		"imap-host":           "imap_host",
		"imap-port":           "imap_port",
		"imap-username":       "imap_username",
		"imap-password":       "imap_password",
		"store-dir":           "store_dir",
		"bindings-file":       "bindings_file",
		"post-command":        "post_command",
		"username":            "username",
		"password":            "password",
		"totp-seed":           "totp_seed",
		"insecure":            "insecure",
		"timeout":             "timeout",
		"refresh-interval":    "refresh_interval",
		"json":                "json",
	}

	osExit = os.Exit
)

// issueCmd represents the issue command
var issueCmd = &cobra.Command{
	Use: "issue",
	PreRun: func(cmd *cobra.Command, args []string) {
		viper.SetConfigType("yaml")
		viper.SetConfigName("certpilot")
		viper.AddConfigPath("/etc/certpilot/")
		viper.AddConfigPath("$HOME/certpilot/")
		viper.AddConfigPath(".")
		if configPath != "" {
			viper.SetConfigFile(configPath)
		}

		for k, v := range keyMapping {
			err := viper.BindPFlag(v, cmd.Flags().Lookup(k))
			if err != nil {
				slog.Error("Failed to bind flag", slog.Any("error", err))
				osExit(2)
			}
		}
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				slog.Info("No configuration file found")
			} else {
				slog.Error("Error reading config file", slog.Any("error", err))
				osExit(2)
			}
		} else {
			slog.Info("Using config file:", slog.Any("config", viper.ConfigFileUsed()))
		}

		err := viper.Unmarshal(&issueConfig)
		if err != nil {
			slog.Error("Error reading config file", slog.Any("error", err))
			osExit(2)
		}

		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if v, ok := keyMapping[f.Name]; !f.Changed && ok && viper.IsSet(v) {
				if err := cmd.Flags().Set(f.Name, flagValue(viper.Get(v))); err != nil {
					slog.Error("Failed to set flag", slog.Any("error", err))
					osExit(2)
				}
			}
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		osExit(runIssue(issueConfig))
	},
}

func runIssue(cfg IssueConfig) int {
	options := []client.Option{
		client.WithDebug(debug),
		client.WithInsecureTLS(cfg.Insecure),
		client.WithTimeout(cfg.Timeout),
		client.WithRefreshInterval(cfg.RefreshInterval),
	}
	if baseURL := viper.GetString("ca_url"); baseURL != "" {
		options = append(options, client.WithBaseURL(baseURL))
	}
	caClient, err := client.NewClient(cfg.Username, cfg.Password, cfg.TOTPSeed, options...)
	if err != nil {
		slog.Error("Failed to create CA client", slog.Any("error", err))
		return 2
	}

	completer, err := newCompleter(cfg, caClient)
	if err != nil {
		slog.Error("Failed to create challenge completer", slog.Any("error", err))
		return 2
	}

	orch := &issuance.Orchestrator{
		CA:        caClient,
		Completer: completer,
		Keys:      pki.Generator{Type: cfg.KeyType},
		CSR:       pki.Encoder{},
		Bundler:   pki.BundleBuilder{},
		Installer: &install.Installer{
			StoreDir:     cfg.StoreDir,
			BindingsFile: cfg.BindingsFile,
			PostCommand:  cfg.PostCommand,
		},
		Secrets: &issuance.PromptSecret{Prompt: issuance.TerminalPrompt},
		Confirm: issuance.TerminalConfirm{},
	}

	report, err := orch.Run(issuance.Options{
		Domains:            cfg.Domains,
		Contact:            cfg.Contact,
		AcceptTOS:          cfg.AcceptTOS,
		TOSURI:             cfg.TOSURI,
		AcceptInstructions: cfg.AcceptInstructions,
		BundlePassword:     cfg.BundlePassword,
		StoreName:          cfg.Store,
		InstallSite:        cfg.InstallSite,
		InstallBinding:     cfg.InstallBinding,
		OutDir:             cfg.OutDir,
	})
	if err == nil && cfg.JSON {
		if out, jsonErr := json.MarshalIndent(report, "", "  "); jsonErr == nil {
			fmt.Println(string(out))
		}
	}
	return exitCode(report, err)
}

// flagValue renders a config value so pflag can parse it back. Slices need
// the comma form; fmt would produce "[a b]".
func flagValue(val any) string {
	switch v := val.(type) {
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprintf("%v", p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// exitCode distinguishes a clean run (0), a completed run with at least one
// failed domain (1) and a run aborted before domain processing (2).
func exitCode(report *issuance.Report, err error) int {
	if err != nil {
		slog.Error("Run aborted", slog.Any("error", err))
		return 2
	}
	if report.Failed() > 0 {
		return 1
	}
	return 0
}

func newCompleter(cfg IssueConfig, finalizer challenge.Finalizer) (challenge.Completer, error) {
	switch cfg.Challenge {
	case "", "webroot":
		return &challenge.Webroot{Root: cfg.Webroot, Finalizer: finalizer}, nil
	case "dns":
		provider, err := dns.NewProvider(cfg.DNSConfig)
		if err != nil {
			return nil, err
		}
		return &challenge.DNSTxt{Provider: provider, Finalizer: finalizer}, nil
	case "email":
		return &challenge.Email{
			Mailbox: imap.Config{
				Host:     cfg.ImapHost,
				Port:     cfg.ImapPort,
				Username: cfg.ImapUsername,
				Password: cfg.ImapPassword,
				Debug:    debug,
				Timeout:  cfg.Timeout,
			},
			Finalizer: finalizer,
			Insecure:  cfg.Insecure,
		}, nil
	default:
		return nil, fmt.Errorf("unknown challenge type %q", cfg.Challenge)
	}
}

func init() {
	rootCmd.AddCommand(issueCmd)
	issueCmd.Flags().StringSlice("domains", []string{}, "Domains to issue certificates for, processed in order")
	issueCmd.Flags().String("contact", "", "Account contact passed to registration")
	issueCmd.Flags().Bool("accept-tos", false, "Accept the CA's terms of service")
	issueCmd.Flags().String("tos-uri", "", "Expected terms-of-service URI")
	issueCmd.Flags().Bool("accept-instructions", false, "Proceed without interactive confirmation before challenge finalization")
	issueCmd.Flags().String("bundle-password", "", "Password protecting the key bundle (prompted when empty)")
	issueCmd.Flags().String("store", "WebHosting", "Certificate store to install into")
	issueCmd.Flags().String("install-site", "", "Site to bind the certificate to")
	issueCmd.Flags().String("install-binding", "", "Binding passed to the installer")
	issueCmd.Flags().String("out-dir", ".", "Directory for certificate and bundle artifacts")
	issueCmd.Flags().String("key-type", "RSA2048", "Key type (EC256, EC384, RSA2048, RSA4096)")
	issueCmd.Flags().String("challenge", "webroot", "Challenge completer (webroot, dns, email)")
	issueCmd.Flags().String("webroot", "", "Web root for the webroot challenge")
	issueCmd.Flags().String("dns-config", "", "Path to the DNS zone config for the dns challenge")
	issueCmd.Flags().String("imap-host", "", "IMAP server hostname for the email challenge")
	issueCmd.Flags().Int("imap-port", 993, "IMAP server port")
	issueCmd.Flags().String("imap-username", "", "IMAP server username")
	issueCmd.Flags().String("imap-password", "", "IMAP server password")
	issueCmd.Flags().String("store-dir", "store", "Directory backing the local certificate store")
	issueCmd.Flags().String("bindings-file", "bindings.yaml", "Site bindings file maintained by the installer")
	issueCmd.Flags().String("post-command", "", "Command to run after each installation")
	issueCmd.Flags().StringP("username", "u", "", "CA account username")
	issueCmd.Flags().StringP("password", "p", "", "CA account password")
	issueCmd.Flags().StringP("totp-seed", "t", "", "CA account TOTP seed")
	issueCmd.Flags().Bool("insecure", false, "Disable TLS validation for CA and challenge calls only")
	issueCmd.Flags().Duration("timeout", 2*time.Minute, "Timeout for each network-bound step")
	issueCmd.Flags().Duration("refresh-interval", 10*time.Minute, "Renew the CA session when its token expires within this window")
	issueCmd.Flags().Bool("json", false, "Print a machine-readable run report")

	for _, s := range []string{"domains", "contact", "install-site", "username", "password"} {
		err := issueCmd.MarkFlagRequired(s)
		if err != nil {
			slog.Error("Failed to mark flag required", slog.Any("error", err))
			os.Exit(2)
		}
	}

	issueCmd.Flags().StringVar(&configPath, "config", "", "config file (default is certpilot.yaml)")
}
