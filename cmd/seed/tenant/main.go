package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/db"
	"tenant-gateway/pkg/gen"
	"tenant-gateway/pkg/hashistack/secretmanager"
	"tenant-gateway/pkg/logger"
	"tenant-gateway/pkg/security"
	"tenant-gateway/services/connection"
	"tenant-gateway/services/directory"
	"tenant-gateway/services/provisioning"
	"tenant-gateway/services/schema"
)

type flags struct {
	company    string
	subdomain  string
	dbHost     string
	dbPort     int
	dbName     string
	dbUser     string
	dbPassword string
	features   string
	whitelist  string
	plan       string
	trialDays  int
	migrate    bool
	skipCheck  bool
}

func main() {
	var f flags
	genSalt := flag.Bool("gen-salt", false, "print a random SECURITY.KDF_SALT and exit")
	flag.StringVar(&f.company, "company", "", "company name")
	flag.StringVar(&f.subdomain, "subdomain", "", "tenant subdomain, derived from -company when empty")
	flag.StringVar(&f.dbHost, "db-host", "127.0.0.1", "tenant database host")
	flag.IntVar(&f.dbPort, "db-port", 5432, "tenant database port")
	flag.StringVar(&f.dbName, "db-name", "", "tenant database name")
	flag.StringVar(&f.dbUser, "db-user", "", "tenant database user")
	flag.StringVar(&f.dbPassword, "db-password", os.Getenv("TENANT_DB_PASSWORD"), "tenant database password (or TENANT_DB_PASSWORD)")
	flag.StringVar(&f.features, "features", "portfolio,ipo,reports,fees", "comma separated feature flags")
	flag.StringVar(&f.whitelist, "whitelist", "", "comma separated IPs or CIDRs")
	flag.StringVar(&f.plan, "plan", "trial", "subscription plan name")
	flag.IntVar(&f.trialDays, "trial-days", provisioning.DefaultTrialDays, "trial length in days")
	flag.BoolVar(&f.migrate, "migrate", false, "create the back-office tables in the tenant database")
	flag.BoolVar(&f.skipCheck, "skip-check", false, "do not connect to the tenant database")
	flag.Parse()

	if *genSalt {
		salt, err := security.GenerateSalt(32)
		if err != nil {
			log.Fatalf("generate salt: %v", err)
		}
		fmt.Println(salt)
		return
	}

	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		security.Module,
		gen.Module,
		schema.Module,
		provisioning.Module,
		fx.Provide(
			connection.NewGormDialer,
			func(d *connection.GormDialer) connection.Dialer { return d },
			func(v *security.Vault) provisioning.Encrypter { return v },
		),
		fx.Supply(f),
		fx.Invoke(run),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	_ = app.Stop(ctx)
}

func run(gdb *gorm.DB, svc *provisioning.Service, f flags) error {
	ctx := context.Background()

	if err := directory.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate directory: %w", err)
	}

	tenant, err := svc.CreateTrialTenant(ctx, provisioning.Request{
		CompanyName: f.company,
		Subdomain:   f.subdomain,
		DBHost:      f.dbHost,
		DBPort:      f.dbPort,
		DBName:      f.dbName,
		DBUser:      f.dbUser,
		DBPassword:  f.dbPassword,
		Features:    split(f.features),
		PlanName:    f.plan,
		TrialDays:   f.trialDays,
		Whitelist:   split(f.whitelist),

		CheckDatabase: !f.skipCheck,
		Migrate:       f.migrate,
	})
	if err != nil {
		return err
	}

	zap.L().Info("tenant seeded",
		zap.String("tenant_id", tenant.ID),
		zap.String("tenant_key", tenant.TenantKey),
		zap.String("subdomain", tenant.Subdomain))
	return nil
}

func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
