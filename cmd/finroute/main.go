package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zen-systems/finroute/pkg/adapter"
	"github.com/zen-systems/finroute/pkg/api"
	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/credentials"
	"github.com/zen-systems/finroute/pkg/fallback"
	"github.com/zen-systems/finroute/pkg/router"
)

// methodDegraded marks a decision the CLI substituted after every provider
// failed.
const methodDegraded router.Method = "degraded"

var (
	configFile string
	current    *app
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "finroute",
		Short: "Hybrid query router for financial tutoring assistants",
		Long: `finroute decides which handler should answer a financial question.

	Queries that clearly ask for a calculation are routed by a deterministic
	pattern matcher. Everything else is classified by an LLM through an ordered
	chain of providers that falls through on failure.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "keys" || (cmd.Parent() != nil && cmd.Parent().Name() == "keys") {
				return nil
			}
			a, err := newApp(configFile)
			if err != nil {
				return startupError(err)
			}
			current = a
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to routing config file")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(keysCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// startupError separates a bad routing table or environment, which the
// operator must fix, from other load failures.
func startupError(err error) error {
	if config.IsConfigurationError(err) {
		return fmt.Errorf("invalid configuration, refusing to start: %w", err)
	}
	return fmt.Errorf("failed to load config: %w", err)
}

func routeCmd() *cobra.Command {
	var (
		localeFlag   string
		defaultFlag  string
		fastOnlyFlag bool
		noProbeFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "route [query]",
		Short: "Route a query and print the decision as JSON",
		Long: `Runs the pattern matcher and, when it is not confident enough, the LLM
	classifier. The decision is printed as JSON.

	Use --default-category to print a degraded decision instead of failing when
	every provider is down.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, _, err := current.newRouter(ctx, fastOnlyFlag, !noProbeFlag)
			if err != nil {
				return err
			}

			decision, err := rt.Route(ctx, args[0], router.WithLocale(localeFlag))
			if err != nil {
				if defaultFlag == "" || !errors.Is(err, fallback.ErrProviderExhausted) {
					return err
				}
				current.logger.Warn().Err(err).Str("category", defaultFlag).Msg("all providers failed, using default category")
				decision = degradedDecision(router.Category(defaultFlag), err)
			}
			return printJSON(decision)
		},
	}

	cmd.Flags().StringVar(&localeFlag, "locale", "", "BCP 47 locale hint (es, en-US)")
	cmd.Flags().StringVar(&defaultFlag, "default-category", "", "category to report when every provider fails")
	cmd.Flags().BoolVar(&fastOnlyFlag, "fast-only", false, "skip the LLM classifier")
	cmd.Flags().BoolVar(&noProbeFlag, "no-probe", false, "skip the provider liveness probe")

	return cmd
}

func degradedDecision(category router.Category, cause error) router.Decision {
	meta := map[string]any{"error": cause.Error()}
	var exhausted *fallback.ExhaustedError
	if errors.As(cause, &exhausted) {
		providers := make([]string, len(exhausted.Attempts))
		for i, a := range exhausted.Attempts {
			providers[i] = fmt.Sprintf("%s:%s", a.Provider, a.Kind)
		}
		meta["failed_providers"] = providers
	}
	return router.Decision{
		ID:       uuid.NewString(),
		Target:   category,
		Method:   methodDegraded,
		Metadata: meta,
	}
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Show the pattern matcher rule table",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := router.NewRuleSet(current.cfg.RoutingConfig)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tPRIORITY\tPARAMS\tKEYWORDS")
			for _, r := range rules.Rules() {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Category, r.Priority, r.RequiredParams, formatKeywords(r.Keywords))
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "THRESHOLD\t%.2f\t\t\n", current.cfg.RoutingConfig.Threshold)
			fmt.Fprintf(w, "LOCALES\t%s\t\t\n", strings.Join(rules.Locales(), ", "))
			return w.Flush()
		},
	}
}

func formatKeywords(kws map[string][]string) string {
	locales := make([]string, 0, len(kws))
	for l := range kws {
		locales = append(locales, l)
	}
	sort.Strings(locales)

	parts := make([]string, 0, len(locales))
	for _, l := range locales {
		parts = append(parts, fmt.Sprintf("%s: %s", l, strings.Join(kws[l], ", ")))
	}
	return strings.Join(parts, "; ")
}

func providersCmd() *cobra.Command {
	var noProbeFlag bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Probe the configured providers and show the fallback chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			models := make(map[string]string)
			for _, p := range current.cfg.RoutingConfig.Providers {
				models[p.Name] = p.Model
			}

			chain, err := current.buildChain(ctx, !noProbeFlag)
			var dropped []fallback.Handle
			switch {
			case err == nil:
				dropped = chain.Dropped()
			case errors.Is(err, fallback.ErrNoLiveProviders):
				// Every candidate failed; list them all as dropped.
				for _, c := range current.candidates(ctx) {
					probeErr := c.Err
					if probeErr == nil {
						probeErr = errors.New("probe failed")
					}
					dropped = append(dropped, fallback.Handle{Name: c.Name, Priority: c.Priority, ProbeErr: probeErr})
				}
			default:
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER\tPROVIDER\tMODEL\tSTATUS\tDETAIL")
			if chain != nil {
				for i, h := range chain.Providers() {
					fmt.Fprintf(w, "%d\t%s\t%s\tlive\t-\n", i+1, h.Name, orDash(models[h.Name]))
				}
			}
			for _, h := range dropped {
				detail := "-"
				if h.ProbeErr != nil {
					detail = h.ProbeErr.Error()
				}
				fmt.Fprintf(w, "-\t%s\t%s\tdropped\t%s\n", h.Name, orDash(models[h.Name]), detail)
			}
			for _, name := range adapter.KnownProviders() {
				if _, ok := models[name]; ok || name == "mock" {
					continue
				}
				detail := "no key"
				if current.cfg.HasAdapter(name) {
					detail = "ready"
				}
				fmt.Fprintf(w, "-\t%s\t-\tunconfigured\t%s\n", name, detail)
			}
			if flushErr := w.Flush(); flushErr != nil {
				return flushErr
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&noProbeFlag, "no-probe", false, "list providers without probing them")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func serveCmd() *cobra.Command {
	var (
		portFlag     int
		fastOnlyFlag bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the routing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, holder, err := current.newRouter(ctx, fastOnlyFlag, true)
			if err != nil {
				return err
			}

			port := current.cfg.Env.ServerPort
			if cmd.Flags().Changed("port") {
				port = portFlag
			}

			opts := []api.Option{
				api.WithPort(port),
				api.WithLogger(current.logger),
				api.WithGatherer(current.registry),
				api.WithRateLimit(current.cfg.Env.RateLimitRPM),
			}
			if holder != nil {
				opts = append(opts, api.WithHolder(holder))
			}
			return api.NewServer(rt, opts...).Start(ctx)
		},
	}

	cmd.Flags().IntVar(&portFlag, "port", 8080, "listen port (overrides SERVER_PORT)")
	cmd.Flags().BoolVar(&fastOnlyFlag, "fast-only", false, "serve without the LLM classifier")
	return cmd
}

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider API keys in the OS keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [provider]",
		Short: "Store an API key read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := credentials.KeyForProvider(args[0])
			if !ok {
				return fmt.Errorf("provider %q does not use an API key", args[0])
			}
			fmt.Fprintf(os.Stderr, "Enter %s API key: ", args[0])
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read key: %w", err)
			}
			value := strings.TrimSpace(line)
			if value == "" {
				return fmt.Errorf("empty key")
			}
			if err := credentials.Set(key, value); err != nil {
				return fmt.Errorf("store key: %w", err)
			}
			fmt.Fprintf(os.Stderr, "stored %s\n", key)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [provider]",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := credentials.KeyForProvider(args[0])
			if !ok {
				return fmt.Errorf("provider %q does not use an API key", args[0])
			}
			return credentials.Delete(key)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show which keys are stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			configured := credentials.ListConfigured()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSTORED")
			for _, k := range credentials.AllKeys {
				fmt.Fprintf(w, "%s\t%v\n", k, configured[k])
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every stored key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return credentials.ClearAll()
		},
	})

	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
