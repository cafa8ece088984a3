package stack

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/jsii-runtime-go"

	"spring-fargate-infra/config"
)

// DatabaseSecretName derives the stable physical name of the credentials
// secret from the stack name, so repeated deploys reference the same secret
// instead of recreating it.
func DatabaseSecretName(stackName string) string {
	return stackName + "-db-credentials"
}

// createDatabaseSecret declares the generated database credential. The
// username is the fixed superuser literal; only the password is generated,
// with every shell- and JDBC-unsafe character excluded because the value is
// later interpolated into the bootstrap script and the datasource URL
// without further escaping.
func createDatabaseSecret(resources *Resources, env config.Environment) awssecretsmanager.Secret {
	secret := awssecretsmanager.NewSecret(resources.Stack, jsii.String("DatabaseSecret"), &awssecretsmanager.SecretProps{
		SecretName:  jsii.String(DatabaseSecretName(env.StackName)),
		Description: jsii.String("Postgres superuser credentials for " + env.Name),
		GenerateSecretString: &awssecretsmanager.SecretStringGenerator{
			SecretStringTemplate: jsii.String(`{"username": "` + DatabaseUsername + `"}`),
			GenerateStringKey:    jsii.String("password"),
			ExcludeCharacters:    jsii.String(PasswordExcludeCharacters),
		},
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})
	awscdk.Tags_Of(secret).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)

	return secret
}
