package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/his/his/internal/config"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "his-server",
		Short: "Outpatient hospital information system API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(hospitalCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

// migrationFiles prefers an on-disk directory so migrations can be tested
// without rebuilding; the embedded copy is used otherwise.
func migrationFiles(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.Files
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to a hospital schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			hospital, _ := cmd.Flags().GetString("hospital")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if hospital == "" {
				hospital = cfg.DefaultHospital
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.CreateHospitalSchema(ctx, pool, hospital, nil); err != nil {
				return err
			}
			schema := db.SchemaName(hospital)
			n, err := db.NewMigratorFS(pool, migrationFiles(dir)).Up(ctx, schema)
			if err != nil {
				return err
			}
			fmt.Printf("Applied %d migration(s) to %s\n", n, schema)
			return nil
		},
	}
	upCmd.Flags().String("hospital", "", "Hospital identifier (defaults to DEFAULT_HOSPITAL)")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status for a hospital schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			hospital, _ := cmd.Flags().GetString("hospital")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if hospital == "" {
				hospital = cfg.DefaultHospital
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigratorFS(pool, migrationFiles(dir)).Status(ctx, db.SchemaName(hospital))
			if err != nil {
				return err
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("hospital", "", "Hospital identifier (defaults to DEFAULT_HOSPITAL)")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func hospitalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hospital",
		Short: "Manage hospital schemas",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a hospital schema and apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return fmt.Errorf("--id is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating hospital schema: %s\n", db.SchemaName(id))
			if err := db.CreateHospitalSchema(ctx, pool, id, migrations.Files); err != nil {
				return err
			}
			fmt.Println("Hospital created.")
			return nil
		},
	}
	createCmd.Flags().String("id", "", "Hospital identifier (letters, digits, underscore)")

	cmd.AddCommand(createCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a staff access token signed with JWT_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			req, err := tokenRequestFromFlags(cmd, cfg)
			if err != nil {
				return err
			}
			tok, err := auth.SignToken(cfg.SigningKey(), req)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("sub", "", "User id (random when empty)")
	cmd.Flags().String("roles", "", "Comma separated roles: admin, doctor, nurse, pharmacist, cashier")
	cmd.Flags().String("doctor-id", "", "Doctor id for doctor tokens")
	cmd.Flags().String("department-id", "", "Department id for nurse tokens")
	cmd.Flags().String("hospital", "", "Hospital identifier embedded in the token")
	cmd.Flags().Duration("ttl", 8*time.Hour, "Token lifetime")
	return cmd
}

func tokenRequestFromFlags(cmd *cobra.Command, cfg *config.Config) (auth.TokenRequest, error) {
	sub, _ := cmd.Flags().GetString("sub")
	roles, _ := cmd.Flags().GetString("roles")
	doctorID, _ := cmd.Flags().GetString("doctor-id")
	departmentID, _ := cmd.Flags().GetString("department-id")
	hospital, _ := cmd.Flags().GetString("hospital")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	req := auth.TokenRequest{
		Subject:    uuid.New(),
		HospitalID: hospital,
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		TTL:        ttl,
	}
	if sub != "" {
		id, err := uuid.Parse(sub)
		if err != nil {
			return req, fmt.Errorf("invalid --sub: %w", err)
		}
		req.Subject = id
	}
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			req.Roles = append(req.Roles, r)
		}
	}
	if doctorID != "" {
		id, err := uuid.Parse(doctorID)
		if err != nil {
			return req, fmt.Errorf("invalid --doctor-id: %w", err)
		}
		req.DoctorID = &id
	}
	if departmentID != "" {
		id, err := uuid.Parse(departmentID)
		if err != nil {
			return req, fmt.Errorf("invalid --department-id: %w", err)
		}
		req.DepartmentID = &id
	}
	return req, nil
}
