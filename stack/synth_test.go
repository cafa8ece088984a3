package stack

import (
	"strings"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spring-fargate-infra/config"
)

func testEnvironment() config.Environment {
	return config.Environment{
		Name:              "prod",
		ShouldDeploy:      true,
		StackName:         "app-prod",
		VPCName:           "app-prod-vpc",
		SecurityGroupName: "app-prod-db-sg",
		DatabaseName:      "springapp",
		ECRRepositoryName: "spring-app",
		KeyName:           "app-prod",
		Region:            "eu-west-1",
		ContainerName:     "spring-app",
	}
}

func synthTemplate(t *testing.T, env config.Environment, overlay map[string]string) assertions.Template {
	t.Helper()
	app := awscdk.NewApp(nil)
	s := NewAppStack(app, env.StackName+"-stack", &AppStackProps{
		StackProps: awscdk.StackProps{
			Env: &awscdk.Environment{
				Account: jsii.String("123456789012"),
				Region:  jsii.String(env.Region),
			},
		},
		Environment: env,
		Overlay:     overlay,
	})
	return assertions.Template_FromStack(s.Stack, nil)
}

func TestStackDeploymentCircuitBreaker(t *testing.T) {
	template := synthTemplate(t, testEnvironment(), nil)

	template.HasResourceProperties(jsii.String("AWS::ECS::Service"), map[string]interface{}{
		"DeploymentConfiguration": assertions.Match_ObjectLike(&map[string]interface{}{
			"DeploymentCircuitBreaker": map[string]interface{}{
				"Enable":   true,
				"Rollback": true,
			},
		}),
	})
}

func TestStackSecretGeneration(t *testing.T) {
	template := synthTemplate(t, testEnvironment(), nil)

	template.HasResourceProperties(jsii.String("AWS::SecretsManager::Secret"), map[string]interface{}{
		"Name": "app-prod-db-credentials",
		"GenerateSecretString": assertions.Match_ObjectLike(&map[string]interface{}{
			"GenerateStringKey":    "password",
			"SecretStringTemplate": `{"username": "postgres"}`,
			"ExcludeCharacters":    PasswordExcludeCharacters,
		}),
	})
}

func TestStackHealthCheckPolicy(t *testing.T) {
	template := synthTemplate(t, testEnvironment(), nil)

	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::TargetGroup"), map[string]interface{}{
		"HealthCheckPath":            HealthCheckPath,
		"HealthCheckIntervalSeconds": 30,
		"HealthCheckTimeoutSeconds":  5,
		"HealthyThresholdCount":      2,
		"UnhealthyThresholdCount":    3,
	})
}

func TestStackAutoscalingBounds(t *testing.T) {
	template := synthTemplate(t, testEnvironment(), nil)

	template.HasResourceProperties(jsii.String("AWS::ApplicationAutoScaling::ScalableTarget"), map[string]interface{}{
		"MinCapacity": 0,
		"MaxCapacity": 4,
	})
}

func TestStackWithoutDNSHasNoTLSResources(t *testing.T) {
	template := synthTemplate(t, testEnvironment(), nil)

	template.ResourceCountIs(jsii.String("AWS::Route53::RecordSet"), jsii.Number(0))
	template.ResourceCountIs(jsii.String("AWS::ElasticLoadBalancingV2::Listener"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::Listener"), map[string]interface{}{
		"Port":     80,
		"Protocol": "HTTP",
	})

	// No public URL output without DNS.
	outputs := template.FindOutputs(jsii.String("ApplicationURL"), nil)
	assert.Empty(t, *outputs)
}

func TestStackWithDNSTerminatesTLS(t *testing.T) {
	env := testEnvironment()
	env.DomainName = "example.com"
	env.Subdomain = "app"
	env.CertificateARN = "arn:aws:acm:eu-west-1:123456789012:certificate/00000000-0000-0000-0000-000000000000"

	template := synthTemplate(t, env, nil)

	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::Listener"), map[string]interface{}{
		"Port":     443,
		"Protocol": "HTTPS",
	})
	// HTTP is redirected, not served.
	template.HasResourceProperties(jsii.String("AWS::ElasticLoadBalancingV2::Listener"), map[string]interface{}{
		"Port": 80,
		"DefaultActions": assertions.Match_ArrayWith(&[]interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{
				"Type": "redirect",
			}),
		}),
	})
	template.ResourceCountIs(jsii.String("AWS::Route53::RecordSet"), jsii.Number(1))

	outputs := template.FindOutputs(jsii.String("ApplicationURL"), nil)
	require.NotEmpty(t, *outputs)
}

func TestStackDatabaseFirewallPolicy(t *testing.T) {
	env := testEnvironment()
	env.AllowSSHFromAnywhere = true

	template := synthTemplate(t, env, nil)

	template.HasResourceProperties(jsii.String("AWS::EC2::SecurityGroup"), map[string]interface{}{
		"GroupName": "app-prod-db-sg",
		"SecurityGroupIngress": assertions.Match_ArrayWith(&[]interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{
				"FromPort":    22,
				"ToPort":      22,
				"CidrIp":      "0.0.0.0/0",
				"Description": "Operator SSH access to the database host",
			}),
		}),
	})

	// The service-to-database rule references another security group, so it
	// synthesizes as a standalone ingress resource.
	template.HasResourceProperties(jsii.String("AWS::EC2::SecurityGroupIngress"), map[string]interface{}{
		"FromPort":    DatabasePort,
		"ToPort":      DatabasePort,
		"IpProtocol":  "tcp",
		"Description": "Application tasks to Postgres",
	})
}

func TestStackNoSSHRuleByDefault(t *testing.T) {
	template := synthTemplate(t, testEnvironment(), nil)

	template.HasResourceProperties(jsii.String("AWS::EC2::SecurityGroup"), map[string]interface{}{
		"GroupName":            "app-prod-db-sg",
		"SecurityGroupIngress": assertions.Match_Absent(),
	})
}

func TestStackWithoutPipeline(t *testing.T) {
	template := synthTemplate(t, testEnvironment(), nil)
	template.ResourceCountIs(jsii.String("AWS::CodePipeline::Pipeline"), jsii.Number(0))
}

func TestStackWithPipeline(t *testing.T) {
	env := testEnvironment()
	env.Source = config.Source{
		Owner:           "example-org",
		Repo:            "spring-app",
		Branch:          "main",
		TokenSecretName: "github-token",
	}
	env.PipelineName = "app-prod-pipeline"
	env.DiscordWebhookURL = "https://discord.com/api/webhooks/x"

	template := synthTemplate(t, env, nil)

	template.ResourceCountIs(jsii.String("AWS::CodePipeline::Pipeline"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::CodePipeline::Pipeline"), map[string]interface{}{
		"Name": "app-prod-pipeline",
		"Stages": assertions.Match_ArrayWith(&[]interface{}{
			assertions.Match_ObjectLike(&map[string]interface{}{"Name": "Source"}),
			assertions.Match_ObjectLike(&map[string]interface{}{"Name": "Build"}),
			assertions.Match_ObjectLike(&map[string]interface{}{"Name": "Deploy"}),
		}),
	})

	// Notifier lambda and its state-change rule.
	template.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]interface{}{
		"Handler": "bootstrap",
		"Environment": assertions.Match_ObjectLike(&map[string]interface{}{
			"Variables": assertions.Match_ObjectLike(&map[string]interface{}{
				"PIPELINE_NAME": "app-prod-pipeline",
			}),
		}),
	})
	template.HasResourceProperties(jsii.String("AWS::Events::Rule"), map[string]interface{}{
		"EventPattern": assertions.Match_ObjectLike(&map[string]interface{}{
			"source": []interface{}{"aws.codepipeline"},
		}),
	})
}

func TestStackDatabaseWaitsForInitScripts(t *testing.T) {
	// The bootstrap's script fetch copies an empty bucket cleanly as nothing,
	// so without an explicit dependency the host could boot before the upload
	// and come up without schema.
	template := synthTemplate(t, testEnvironment(), nil)

	resources := (*template.ToJSON())["Resources"].(map[string]interface{})
	var dependsOn []interface{}
	for _, raw := range resources {
		res := raw.(map[string]interface{})
		if res["Type"] == "AWS::EC2::Instance" {
			dependsOn, _ = res["DependsOn"].([]interface{})
		}
	}
	require.NotEmpty(t, dependsOn)

	found := false
	for _, dep := range dependsOn {
		if strings.HasPrefix(dep.(string), "DbInitScripts") {
			found = true
		}
	}
	assert.True(t, found, "instance does not wait for the init script upload")
}

func TestStackConstructionIsDeterministic(t *testing.T) {
	first := synthTemplate(t, testEnvironment(), map[string]string{"FEATURE_X": "on"})
	second := synthTemplate(t, testEnvironment(), map[string]string{"FEATURE_X": "on"})
	assert.Equal(t, *first.ToJSON(), *second.ToJSON())
}
