package stack

import (
	"fmt"
	"strings"
)

// BootstrapStep is one named phase of the database host's first-boot
// sequence. Steps run strictly in order; the rendered script halts on the
// first failing command, leaving the host partially configured (a known,
// accepted limitation of the single-node database).
type BootstrapStep struct {
	Name     string
	Commands []string
}

// BootstrapSpec carries everything the first-boot sequence needs. Bucket
// name and CIDR may be unresolved deploy-time tokens; the password is never
// part of the spec — it is fetched from Secrets Manager on the host itself.
type BootstrapSpec struct {
	Region            string
	DatabaseName      string
	SecretName        string
	ScriptsBucketName string
	VpcCidr           string
	RunAllInitScripts bool
}

const pgData = "/var/lib/pgsql/data"

// BootstrapSteps returns the ordered first-boot sequence for the Postgres
// host. The order is load-bearing: the auth patch lands before the service
// starts, and the password is applied through the still-open local peer
// path before any init script runs.
func BootstrapSteps(spec BootstrapSpec) []BootstrapStep {
	initScripts := fmt.Sprintf("sudo -u postgres psql -d %s -f /tmp/dbinit/init.sql", spec.DatabaseName)
	if spec.RunAllInitScripts {
		// Glob expansion is lexical, so scripts run in filename order.
		initScripts = fmt.Sprintf(`for f in /tmp/dbinit/*.sql; do sudo -u postgres psql -d %s -f "$f"; done`, spec.DatabaseName)
	}

	return []BootstrapStep{
		{
			Name: "install-packages",
			Commands: []string{
				"dnf update -y",
				"dnf install -y postgresql15-server postgresql15 awscli jq",
			},
		},
		{
			Name: "init-data-directory",
			Commands: []string{
				"postgresql-setup --initdb",
			},
		},
		{
			Name: "listen-on-all-interfaces",
			Commands: []string{
				fmt.Sprintf(`echo "listen_addresses = '*'" >> %s/postgresql.conf`, pgData),
				fmt.Sprintf(`echo "password_encryption = scram-sha-256" >> %s/postgresql.conf`, pgData),
			},
		},
		{
			// Host lines switch from ident to password auth; the local peer
			// line is left alone so the superuser password can still be set
			// below. The VPC rule is an explicit allow, not a wildcard.
			Name: "require-password-auth",
			Commands: []string{
				fmt.Sprintf(`sed -i "s/ident/scram-sha-256/g" %s/pg_hba.conf`, pgData),
				fmt.Sprintf(`echo "host all all %s scram-sha-256" >> %s/pg_hba.conf`, spec.VpcCidr, pgData),
			},
		},
		{
			Name: "start-service",
			Commands: []string{
				"systemctl enable postgresql",
				"systemctl start postgresql",
			},
		},
		{
			Name: "fetch-init-scripts",
			Commands: []string{
				"mkdir -p /tmp/dbinit",
				fmt.Sprintf("aws s3 cp s3://%s/ /tmp/dbinit/ --recursive --region %s", spec.ScriptsBucketName, spec.Region),
			},
		},
		{
			Name: "fetch-password",
			Commands: []string{
				fmt.Sprintf(`DB_PASSWORD=$(aws secretsmanager get-secret-value --secret-id %s --region %s --query SecretString --output text | jq -r .password)`, spec.SecretName, spec.Region),
			},
		},
		{
			Name: "apply-password",
			Commands: []string{
				fmt.Sprintf(`sudo -u postgres psql -c "ALTER USER %s WITH PASSWORD '${DB_PASSWORD}'"`, DatabaseUsername),
			},
		},
		{
			Name: "create-database",
			Commands: []string{
				fmt.Sprintf("sudo -u postgres createdb %s", spec.DatabaseName),
			},
		},
		{
			Name: "run-init-scripts",
			Commands: []string{
				initScripts,
			},
		},
	}
}

// RenderBootstrap turns the step list into the user data script executed on
// first boot. set -e gives the sequence its halt-on-first-failure
// semantics; each step is bracketed by a named marker so a partial
// bootstrap can be located in the instance log.
func RenderBootstrap(steps []BootstrapStep) string {
	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	sb.WriteString("set -eu\n")
	for _, step := range steps {
		sb.WriteString(fmt.Sprintf("\n# step: %s\n", step.Name))
		for _, cmd := range step.Commands {
			sb.WriteString(cmd)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
