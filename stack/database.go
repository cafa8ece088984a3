package stack

import (
	"fmt"
	"path/filepath"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3deployment"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/jsii-runtime-go"

	"spring-fargate-infra/config"
)

// DatabaseResources holds the self-managed Postgres host and the bucket its
// bootstrap pulls init scripts from.
type DatabaseResources struct {
	Instance          awsec2.Instance
	CredentialsSecret awssecretsmanager.ISecret
	ScriptsBucket     awss3.IBucket
}

// initScriptsDir is the repository directory uploaded verbatim to the
// scripts bucket. init.sql is the conventional baseline schema; additional
// scripts run in lexical order when runAllInitScripts is set.
func initScriptsDir() string {
	return filepath.Join(projectRoot(), "db", "init")
}

// createDatabaseResources declares the single database host. Durable
// relational storage here is one unmanaged instance configured by a
// first-boot script; it is not replicated and not self-healing. A failed
// bootstrap step leaves the host up but unreachable by the application, and
// recovery is replacing the host.
func createDatabaseResources(resources *Resources, network *NetworkResources, secret awssecretsmanager.ISecret, env config.Environment) *DatabaseResources {
	bucketName := fmt.Sprintf("%s-db-init-%s-%s", env.StackName, resources.Account, resources.Region)
	scriptsBucket := awss3.NewBucket(resources.Stack, jsii.String("DbInitScriptsBucket"), &awss3.BucketProps{
		BucketName:        jsii.String(bucketName),
		RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
		AutoDeleteObjects: jsii.Bool(true),
		BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
	})
	awscdk.Tags_Of(scriptsBucket).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)

	deployment := awss3deployment.NewBucketDeployment(resources.Stack, jsii.String("DbInitScripts"), &awss3deployment.BucketDeploymentProps{
		Sources:           &[]awss3deployment.ISource{awss3deployment.Source_Asset(jsii.String(initScriptsDir()), nil)},
		DestinationBucket: scriptsBucket,
	})

	script := RenderBootstrap(BootstrapSteps(BootstrapSpec{
		Region:            resources.Region,
		DatabaseName:      env.DatabaseName,
		SecretName:        DatabaseSecretName(env.StackName),
		ScriptsBucketName: bucketName,
		VpcCidr:           *network.Vpc.VpcCidrBlock(),
		RunAllInitScripts: env.RunAllInitScripts,
	}))

	keyPair := awsec2.KeyPair_FromKeyPairName(resources.Stack, jsii.String("DbKeyPair"), jsii.String(env.KeyName))

	instance := awsec2.NewInstance(resources.Stack, jsii.String("DatabaseInstance"), &awsec2.InstanceProps{
		Vpc:          network.Vpc,
		InstanceType: awsec2.InstanceType_Of(awsec2.InstanceClass_BURSTABLE3, awsec2.InstanceSize_MICRO),
		MachineImage: awsec2.MachineImage_LatestAmazonLinux2023(nil),
		VpcSubnets: &awsec2.SubnetSelection{
			SubnetType: awsec2.SubnetType_PUBLIC,
		},
		SecurityGroup: network.DatabaseSG,
		KeyPair:       keyPair,
		UserData:      awsec2.UserData_Custom(jsii.String(script)),
	})
	awscdk.Tags_Of(instance).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)
	instance.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	// The first boot copies the init scripts out of the bucket, and an empty
	// bucket copies cleanly as nothing. The host must not launch before the
	// upload finished.
	instance.Node().AddDependency(deployment)

	return &DatabaseResources{
		Instance:          instance,
		CredentialsSecret: secret,
		ScriptsBucket:     scriptsBucket,
	}
}

// DatasourceURL templates the JDBC connection string from the host's
// in-VPC address. It is derived here, never taken from the overlay, so the
// service cannot drift onto a stale endpoint.
func DatasourceURL(host, databaseName string) string {
	return fmt.Sprintf("jdbc:postgresql://%s:%d/%s", host, DatabasePort, databaseName)
}
