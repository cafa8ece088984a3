package stack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBootstrapSpec() BootstrapSpec {
	return BootstrapSpec{
		Region:            "eu-west-1",
		DatabaseName:      "springapp",
		SecretName:        "app-prod-db-credentials",
		ScriptsBucketName: "app-prod-db-init",
		VpcCidr:           "10.0.0.0/16",
	}
}

func TestBootstrapStepOrder(t *testing.T) {
	steps := BootstrapSteps(testBootstrapSpec())

	var names []string
	for _, s := range steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"install-packages",
		"init-data-directory",
		"listen-on-all-interfaces",
		"require-password-auth",
		"start-service",
		"fetch-init-scripts",
		"fetch-password",
		"apply-password",
		"create-database",
		"run-init-scripts",
	}, names)
}

func TestRenderBootstrapHaltsOnFailure(t *testing.T) {
	script := RenderBootstrap(BootstrapSteps(testBootstrapSpec()))
	assert.True(t, strings.HasPrefix(script, "#!/bin/bash\nset -eu\n"))
}

func TestBootstrapPasswordNeverBaked(t *testing.T) {
	// The password travels only as a boot-time Secrets Manager fetch; the
	// rendered script holds the secret name, never a secret value.
	script := RenderBootstrap(BootstrapSteps(testBootstrapSpec()))
	assert.Contains(t, script, "aws secretsmanager get-secret-value --secret-id app-prod-db-credentials")
	assert.Contains(t, script, `ALTER USER postgres WITH PASSWORD '${DB_PASSWORD}'`)
}

func TestBootstrapOrderingConstraints(t *testing.T) {
	script := RenderBootstrap(BootstrapSteps(testBootstrapSpec()))

	indexOf := func(marker string) int {
		idx := strings.Index(script, marker)
		require.GreaterOrEqual(t, idx, 0, "marker %q not found", marker)
		return idx
	}

	// Auth patch before service start, service start before password apply,
	// password apply before init scripts.
	assert.Less(t, indexOf("pg_hba.conf"), indexOf("systemctl start postgresql"))
	assert.Less(t, indexOf("systemctl start postgresql"), indexOf("ALTER USER"))
	assert.Less(t, indexOf("ALTER USER"), indexOf("init.sql"))
}

func TestBootstrapVpcRule(t *testing.T) {
	script := RenderBootstrap(BootstrapSteps(testBootstrapSpec()))
	assert.Contains(t, script, "host all all 10.0.0.0/16 scram-sha-256")
}

func TestBootstrapInitScriptModes(t *testing.T) {
	spec := testBootstrapSpec()

	single := RenderBootstrap(BootstrapSteps(spec))
	assert.Contains(t, single, "psql -d springapp -f /tmp/dbinit/init.sql")
	assert.NotContains(t, single, "for f in")

	spec.RunAllInitScripts = true
	all := RenderBootstrap(BootstrapSteps(spec))
	assert.Contains(t, all, `for f in /tmp/dbinit/*.sql`)
	assert.NotContains(t, all, "-f /tmp/dbinit/init.sql")
}

func TestBootstrapScriptsBucketFetch(t *testing.T) {
	script := RenderBootstrap(BootstrapSteps(testBootstrapSpec()))
	assert.Contains(t, script, "aws s3 cp s3://app-prod-db-init/ /tmp/dbinit/ --recursive --region eu-west-1")
}
