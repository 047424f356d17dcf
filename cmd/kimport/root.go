package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pevans/kimport/ai"
	"github.com/pevans/kimport/blog"
	"github.com/pevans/kimport/brunch"
	"github.com/pevans/kimport/cafe"
	"github.com/pevans/kimport/config"
	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/importer"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/news"
	"github.com/pevans/kimport/sources"
	"github.com/pevans/kimport/vault"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kimport",
	Short: "Import Korean blogs, cafes and news into a markdown vault",
	Long: `kimport fetches posts from brunch, Naver cafe, Naver news and Naver blog,
converts them to clean markdown and saves them as notes with YAML frontmatter.

Single posts and whole lists (an author, a magazine, a cafe board, a press
office) can be imported; posts already in the vault are skipped.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kimport/config.yaml)")
	rootCmd.PersistentFlags().String("vault", "", "vault directory (overrides vault.dir)")
	rootCmd.PersistentFlags().String("image-mode", "", "image handling: default, cdn or local")
	rootCmd.PersistentFlags().String("sources-db", "", "subscription database (overrides storage.sources.dsn)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every request")

	// Bind flags to viper
	viper.BindPFlag("vault", rootCmd.PersistentFlags().Lookup("vault"))
	viper.BindPFlag("image-mode", rootCmd.PersistentFlags().Lookup("image-mode"))
	viper.BindPFlag("sources-db", rootCmd.PersistentFlags().Lookup("sources-db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig loads .env and binds KIMPORT_* environment variables.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("WARN: failed to load .env: %v", err)
	}

	viper.SetEnvPrefix("kimport")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file and applies flag and environment
// overrides. KIMPORT_NAVER_COOKIE and KIMPORT_BRUNCH_COOKIE, usually kept
// in .env, set the login cookies.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.LoadConfigFile()
	}
	if err != nil {
		return nil, err
	}

	if v := viper.GetString("vault"); v != "" {
		cfg.Vault.Dir = v
	}
	if v := viper.GetString("image-mode"); v != "" {
		cfg.Import.ImageMode = media.ImageMode(v)
	}
	if v := viper.GetString("sources-db"); v != "" {
		cfg.Storage.Sources.DSN = v
	}
	if v := viper.GetString("user-agent"); v != "" {
		cfg.HTTP.UserAgent = v
	}
	for key, domain := range map[string]string{"naver-cookie": "naver.com", "brunch-cookie": "brunch.co.kr"} {
		if v := viper.GetString(key); v != "" {
			if cfg.HTTP.Cookies == nil {
				cfg.HTTP.Cookies = make(map[string]string)
			}
			cfg.HTTP.Cookies[domain] = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app holds everything a command needs.
type app struct {
	cfg      *config.Config
	client   *fetch.Client
	vault    *vault.Vault
	importer *importer.Importer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	timeout, _ := cfg.Timeout()
	pageDelay, _ := cfg.PageDelay()

	opts := []fetch.Option{
		fetch.WithUserAgent(cfg.HTTP.UserAgent),
		fetch.WithVerbose(viper.GetBool("verbose")),
	}
	if timeout > 0 {
		opts = append(opts, fetch.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	for domain, cookie := range cfg.HTTP.Cookies {
		opts = append(opts, fetch.WithCookie(domain, cookie))
	}
	client := fetch.New(opts...)

	mode := cfg.Import.ImageMode
	registry := importer.NewRegistry(
		brunch.New(client,
			brunch.WithImageMode(mode),
			brunch.WithPageDelay(pageDelay),
			brunch.WithVideoResolver(&media.VideoResolver{Client: client})),
		cafe.New(client, cafe.WithImageMode(mode), cafe.WithPageDelay(pageDelay)),
		news.New(client, news.WithImageMode(mode), news.WithPageDelay(pageDelay)),
		blog.New(client, blog.WithImageMode(mode), blog.WithPageDelay(pageDelay)),
	)

	v, err := vault.New(cfg.Vault.Dir)
	if err != nil {
		return nil, err
	}

	defaults := importer.Options{
		MaxPosts:    cfg.Import.MaxPosts,
		Comments:    cfg.Import.Comments,
		LocalImages: mode == media.ImageLocal,
	}
	impOpts := []importer.Option{
		importer.WithLocalizer(&media.Localizer{Client: client, Assets: v}),
		importer.WithPostDelay(pageDelay),
		importer.WithDisableAfter(cfg.Import.DisableAfter),
	}

	if cfg.AI.Enabled {
		chatter, err := ai.NewGemini(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			log.Printf("WARN: AI enrichment disabled: %v", err)
		} else {
			impOpts = append(impOpts, importer.WithEnricher(&ai.Enricher{Chatter: chatter}))
			defaults.Enrich = ai.Options{Tags: true, Excerpt: true, Layout: cfg.AI.FixLayout}
		}
	}
	impOpts = append(impOpts, importer.WithDefaults(defaults))

	return &app{
		cfg:      cfg,
		client:   client,
		vault:    v,
		importer: importer.New(registry, v, impOpts...),
	}, nil
}

func (a *app) registry() *importer.Registry {
	return a.importer.Registry()
}

func (a *app) openSources() (*sources.SourceStore, error) {
	dsn := a.cfg.Storage.Sources.DSN
	if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(dsn), err)
	}
	store, err := sources.NewSourceStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open source store: %w", err)
	}
	return store, nil
}
