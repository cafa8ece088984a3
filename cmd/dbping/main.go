// dbping is an operator smoke test for the bootstrapped database host: it
// resolves the generated credentials from Secrets Manager and opens one
// connection to verify the first-boot sequence completed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/jackc/pgx/v5"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func fetchCredentials(secretName, region string) (credentials, error) {
	var creds credentials

	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return creds, fmt.Errorf("create session: %w", err)
	}
	out, err := secretsmanager.New(sess).GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return creds, fmt.Errorf("get secret %s: %w", secretName, err)
	}
	if err := json.Unmarshal([]byte(aws.StringValue(out.SecretString)), &creds); err != nil {
		return creds, fmt.Errorf("parse secret %s: %w", secretName, err)
	}
	return creds, nil
}

func run() error {
	var (
		host     = flag.String("host", "", "database host address")
		port     = flag.Int("port", 5432, "database port")
		database = flag.String("database", "postgres", "database name")
		secret   = flag.String("secret", "", "Secrets Manager secret holding the credentials")
		region   = flag.String("region", "", "AWS region of the secret")
	)
	flag.Parse()

	if *host == "" || *secret == "" || *region == "" {
		return fmt.Errorf("usage: dbping -host HOST -secret NAME -region REGION [-port PORT] [-database NAME]")
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	creds, err := fetchCredentials(*secret, *region)
	if err != nil {
		return err
	}

	cfg, err := pgx.ParseConfig(fmt.Sprintf("postgres://%s:%d/%s", *host, *port, *database))
	if err != nil {
		return fmt.Errorf("parse connection config: %w", err)
	}
	cfg.User = creds.Username
	cfg.Password = creds.Password

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect %s:%d: %w", *host, *port, err)
	}
	defer conn.Close(ctx)

	var version string
	if err := conn.QueryRow(ctx, "select version()").Scan(&version); err != nil {
		return fmt.Errorf("query version: %w", err)
	}

	log.Info("database reachable",
		slog.String("host", *host),
		slog.String("version", version),
	)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
