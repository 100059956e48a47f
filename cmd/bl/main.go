package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"briefline/internal/config"
	"briefline/internal/db"
	"briefline/internal/domain"
	"briefline/internal/enrich"
	"briefline/internal/idempotency"
	"briefline/internal/ingest"
	"briefline/internal/migrate"
	"briefline/internal/repo"
	"briefline/internal/server"
	"briefline/internal/trust"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Briefline CLI",
	Long: `Briefline turns rough client briefs into publishable marketplace missions.
- Mission: a validated, persisted service request with an append-only change log.
- Idempotency: the same Idempotency-Key replays the original creation response.
- Suggestion: deterministic rewrite, pricing, delay and clarifying questions for a brief.
- Standardization: canonical category, skills and tags recorded next to the mission, never over it.
- Trust: a 0-100 provider score with evidence-backed badges, computed on demand.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BRIEFLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(trustCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
		Long:  "Missions are validated service requests. Creation is idempotent per key; standardization and every field change land in the change log.",
	}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionStandardizeCmd())
	m.AddCommand(missionStandardizationsCmd())
	m.AddCommand(missionApplyCmd())
	m.AddCommand(missionChangelogCmd())
	return m
}

func missionCreateCmd() *cobra.Command {
	var title, description, category, deadline, idemKey string
	var budgetMin, budgetMax, onsiteRadius float64
	var geoRequired bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			brief := domain.Brief{
				Title:       title,
				Description: description,
				Category:    category,
				GeoRequired: geoRequired,
			}
			if cmd.Flags().Changed("budget-min") {
				brief.BudgetMin = &budgetMin
			}
			if cmd.Flags().Changed("budget-max") {
				brief.BudgetMax = &budgetMax
			}
			if cmd.Flags().Changed("onsite-radius-km") {
				brief.OnsiteRadiusKm = &onsiteRadius
			}
			if deadline != "" {
				brief.Deadline = &deadline
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *ingest.Service, _ repo.Repo) error {
				res, replayed, err := svc.Create(ctx, brief, idemKey, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if replayed && !viper.GetBool("json") {
					fmt.Println("replayed from idempotency cache")
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&description, "description", "", "mission description")
	cmd.Flags().StringVar(&category, "category", "", "category ("+strings.Join(domain.Categories, ", ")+")")
	cmd.Flags().Float64Var(&budgetMin, "budget-min", 0, "budget minimum (EUR)")
	cmd.Flags().Float64Var(&budgetMax, "budget-max", 0, "budget maximum (EUR)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	cmd.Flags().BoolVar(&geoRequired, "geo-required", false, "mission requires on-site presence")
	cmd.Flags().Float64Var(&onsiteRadius, "onsite-radius-km", 0, "on-site radius in km")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "idempotency key (optional)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func missionListCmd() *cobra.Command {
	var clientID, cursor string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *ingest.Service, _ repo.Repo) error {
				var cursorCreated, cursorID string
				if cursor != "" {
					parts := strings.SplitN(cursor, "|", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid cursor %q", cursor)
					}
					cursorCreated, cursorID = parts[0], parts[1]
				}
				missions, err := svc.List(ctx, clientID, limit, cursorCreated, cursorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Budget", "Status", "Created"})
				for _, m := range missions {
					tw.AppendRow(table.Row{m.ID, m.Title, m.Category, fmt.Sprintf("%.0f-%.0f", m.BudgetMin, m.BudgetMax), m.Status, m.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "client filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "pagination cursor (created_at|id)")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *ingest.Service, _ repo.Repo) error {
				m, err := svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionStandardizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "standardize <id>",
		Short: "Record canonical category, skills and tags for a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *ingest.Service, _ repo.Repo) error {
				std, err := svc.Standardize(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(std)
			})
		},
	}
	return cmd
}

func missionApplyCmd() *cobra.Command {
	var text, delay bool
	var budget string
	cmd := &cobra.Command{
		Use:   "apply <id>",
		Short: "Apply suggestion fields to a stored mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch budget {
			case "", "none", "low", "med", "high":
			default:
				return fmt.Errorf("invalid --budget %q: use none, low, med or high", budget)
			}
			flags := domain.ApplyFlags{Text: text, Budget: budget, Delay: delay}
			return withService(cmd.Context(), func(ctx context.Context, svc *ingest.Service, _ repo.Repo) error {
				p, err := svc.ApplyToMission(ctx, args[0], flags, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Field", "Before", "After"})
				for _, d := range p.Diffs {
					tw.AppendRow(table.Row{d.Field, d.Before, d.After})
				}
				tw.Render()
				fmt.Println(p.ImpactSummary)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "apply rewritten title and description")
	cmd.Flags().StringVar(&budget, "budget", "", "apply suggested budget: none, low, med or high")
	cmd.Flags().BoolVar(&delay, "delay", false, "apply suggested delay")
	return cmd
}

func missionStandardizationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "standardizations <id>",
		Short: "List a mission's standardization history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *ingest.Service, _ repo.Repo) error {
				items, err := svc.Standardizations(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Category", "Skills", "Tags", "Quality", "At"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.CategoryStd, strings.Join(s.Skills, ","), strings.Join(s.Tags, ","), fmt.Sprintf("%.2f", s.QualityScore), s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func missionChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog <id>",
		Short: "Show mission change log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *ingest.Service, _ repo.Repo) error {
				changes, err := svc.ChangeLog(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(changes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Field", "Before", "After", "Source", "Actor", "At"})
				for _, c := range changes {
					tw.AppendRow(table.Row{c.Field, c.Before, c.After, c.Source, c.ActorID, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func suggestCmd() *cobra.Command {
	var title, description, category, deadline string
	var budgetMin, budgetMax float64
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Compute suggestion for a brief without persisting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			brief := domain.Brief{Title: title, Description: description, Category: category}
			if cmd.Flags().Changed("budget-min") {
				brief.BudgetMin = &budgetMin
			}
			if cmd.Flags().Changed("budget-max") {
				brief.BudgetMax = &budgetMax
			}
			if deadline != "" {
				brief.Deadline = &deadline
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *ingest.Service, _ repo.Repo) error {
				out, err := svc.MakeSuggestion(ctx, brief)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "brief title")
	cmd.Flags().StringVar(&description, "description", "", "brief description")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().Float64Var(&budgetMin, "budget-min", 0, "budget minimum")
	cmd.Flags().Float64Var(&budgetMax, "budget-max", 0, "budget maximum")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func trustCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "trust",
		Short: "Provider trust scoring",
	}
	t.AddCommand(trustScoreCmd())
	return t
}

func trustScoreCmd() *cobra.Command {
	var factors domain.TrustFactors
	var historyJSON string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute trust score and badges from factors",
		RunE: func(cmd *cobra.Command, args []string) error {
			var history []domain.ProjectRecord
			if historyJSON != "" {
				if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
					return fmt.Errorf("invalid --history-json: %w", err)
				}
			}
			out := map[string]any{
				"score":  trust.Score(factors),
				"badges": trust.Badges(factors, history),
			}
			return printJSONOrTable(out)
		},
	}
	cmd.Flags().Float64Var(&factors.TenureMonths, "tenure-months", 0, "months on the platform")
	cmd.Flags().Float64Var(&factors.ProjectsPerMonth, "projects-per-month", 0, "average completed projects per month")
	cmd.Flags().Float64Var(&factors.ResponseRate, "response-rate", 0, "response rate 0-100")
	cmd.Flags().Float64Var(&factors.OnTimeRate, "on-time-rate", 0, "on-time delivery rate 0-100")
	cmd.Flags().Float64Var(&factors.CommunicationScore, "communication-score", 0, "communication score 0-100")
	cmd.Flags().Float64Var(&factors.RatingVariance, "rating-variance", 0, "rating variance, lower is better")
	cmd.Flags().BoolVar(&factors.KYCVerified, "kyc", false, "identity verified")
	cmd.Flags().StringVar(&historyJSON, "history-json", "", "completed project history JSON")
	return cmd
}

func apikeyCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	a.AddCommand(apikeyCreateCmd())
	a.AddCommand(apikeyListCmd())
	a.AddCommand(apikeyDeleteCmd())
	return a
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			raw := make([]byte, 24)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			secret := "blk_" + hex.EncodeToString(raw)
			key := domain.APIKey{
				ID:        uuid.NewString(),
				ActorID:   actor,
				Name:      name,
				KeyHash:   repo.HashAPIKey(secret),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"secret":   secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in briefline.yml next to the workspace: server base path, auth, enrichment provider and timeouts, idempotency window, pricing defaults.",
	}
	c.AddCommand(configShowCmd())
	c.AddCommand(configInitCmd())
	return c
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write default briefline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: mission creations, standardizations, API key changes.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, entityKind, entityID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()

			cache, err := buildCache(cfg)
			if err != nil {
				return err
			}
			defer cache.Stop()
			enricher, err := buildEnricher(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			store := repo.Repo{DB: conn}
			svc := ingest.New(conn, store, cache, enricher, cfg, log)

			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyHeader,
				Logger:                 log,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = os.Getenv("BRIEFLINE_JWT_SECRET")
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("auth.jwt_secret (or BRIEFLINE_JWT_SECRET) is required unless auth.allow_legacy_header is set")
			}
			handler, err := server.New(server.Config{
				Service:  svc,
				Repo:     store,
				BasePath: cfg.Server.BasePath,
				Auth:     authCfg,
				Log:      log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Briefline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

// --- helpers ---

func buildCache(cfg *config.Config) (idempotency.Cache, error) {
	if cfg.Idempotency.RedisURL != "" {
		return idempotency.NewRedisCache(cfg.Idempotency.RedisURL, cfg.Idempotency.Window)
	}
	return idempotency.NewMemoryCache(cfg.Idempotency.Window, cfg.Idempotency.SweepEvery), nil
}

func buildEnricher(ctx context.Context, cfg *config.Config, log *zap.Logger) (*enrich.Orchestrator, error) {
	flags := enrich.Flags{
		Normalize: cfg.Enrichment.NormalizeEnabled,
		Generate:  cfg.Enrichment.GeneratorEnabled,
		Question:  cfg.Enrichment.QuestionerEnabled,
	}
	if !flags.Normalize && !flags.Generate && !flags.Question {
		return nil, nil
	}
	var provider enrich.Provider
	switch cfg.Provider.Kind {
	case "http":
		provider = enrich.NewHTTPProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey)
	case "gemini":
		key := cfg.Provider.GeminiKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		p, err := enrich.NewGenAIProvider(ctx, key, "")
		if err != nil {
			return nil, err
		}
		provider = p
	}
	timeouts := enrich.Timeouts{
		Normalize: cfg.Enrichment.NormalizeTimeout,
		Generate:  cfg.Enrichment.GeneratorTimeout,
		Question:  cfg.Enrichment.QuestionerTimeout,
	}
	return enrich.NewOrchestrator(provider, flags, timeouts, log), nil
}

func withService(ctx context.Context, fn func(context.Context, *ingest.Service, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cache := idempotency.NewMemoryCache(cfg.Idempotency.Window, cfg.Idempotency.SweepEvery)
	defer cache.Stop()
	enricher, err := buildEnricher(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	store := repo.Repo{DB: conn}
	svc := ingest.New(conn, store, cache, enricher, cfg, nil)
	return fn(ctx, svc, store)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
