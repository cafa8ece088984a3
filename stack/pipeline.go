package stack

import (
	"path/filepath"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipeline"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodepipelineactions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/jsii-runtime-go"

	"spring-fargate-infra/config"
)

// PipelineResources holds the delivery pipeline and its optional
// notification side-channel.
type PipelineResources struct {
	Pipeline awscodepipeline.Pipeline
	Project  awscodebuild.PipelineProject
	Notifier awslambda.IFunction
}

// notifierAssetDir holds the compiled pipeline-notifier binary (bootstrap,
// provided.al2023). Built by `make notifier` before synth.
func notifierAssetDir() string {
	return filepath.Join(projectRoot(), "functions", "pipeline-notifier", "dist")
}

// createPipelineResources declares the Source -> Build -> Deploy pipeline.
// Only called when the source coordinate group is fully configured. Stages
// are strictly sequential and a failed stage halts the run; re-running is
// operator-triggered, never automatic.
func createPipelineResources(resources *Resources, service *ServiceResources, env config.Environment) *PipelineResources {
	sourceOutput := awscodepipeline.NewArtifact(jsii.String("SourceOutput"), nil)
	buildOutput := awscodepipeline.NewArtifact(jsii.String("BuildOutput"), nil)

	project := awscodebuild.NewPipelineProject(resources.Stack, jsii.String("AppBuildProject"), &awscodebuild.PipelineProjectProps{
		Environment: &awscodebuild.BuildEnvironment{
			BuildImage: awscodebuild.LinuxBuildImage_STANDARD_7_0(),
			// Docker-in-docker for the image build.
			Privileged: jsii.Bool(true),
		},
		EnvironmentVariables: &map[string]*awscodebuild.BuildEnvironmentVariable{
			"REPOSITORY_URI": {Value: service.Repository.RepositoryUri()},
			"CONTAINER_NAME": {Value: jsii.String(env.ContainerName)},
		},
		BuildSpec: buildSpecObject(),
	})
	awscdk.Tags_Of(project).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)

	service.Repository.GrantPullPush(project)
	// Public gallery auth is account-scoped; these two actions only take *.
	project.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions: jsii.Strings(
			"ecr-public:GetAuthorizationToken",
			"sts:GetServiceBearerToken",
		),
		Resources: jsii.Strings("*"),
	}))

	sourceAction := awscodepipelineactions.NewGitHubSourceAction(&awscodepipelineactions.GitHubSourceActionProps{
		ActionName: jsii.String("Source"),
		Owner:      jsii.String(env.Source.Owner),
		Repo:       jsii.String(env.Source.Repo),
		Branch:     jsii.String(env.Source.Branch),
		OauthToken: awscdk.SecretValue_SecretsManager(jsii.String(env.Source.TokenSecretName), nil),
		Output:     sourceOutput,
		Trigger:    awscodepipelineactions.GitHubTrigger_WEBHOOK,
	})

	buildAction := awscodepipelineactions.NewCodeBuildAction(&awscodepipelineactions.CodeBuildActionProps{
		ActionName: jsii.String("Build"),
		Project:    project,
		Input:      sourceOutput,
		Outputs:    &[]awscodepipeline.Artifact{buildOutput},
	})

	deployAction := awscodepipelineactions.NewEcsDeployAction(&awscodepipelineactions.EcsDeployActionProps{
		ActionName: jsii.String("Deploy"),
		Service:    service.Service,
		Input:      buildOutput,
	})

	pipeline := awscodepipeline.NewPipeline(resources.Stack, jsii.String("AppPipeline"), &awscodepipeline.PipelineProps{
		PipelineName: jsii.String(env.PipelineName),
		Stages: &[]*awscodepipeline.StageProps{
			{
				StageName: jsii.String("Source"),
				Actions:   &[]awscodepipeline.IAction{sourceAction},
			},
			{
				StageName: jsii.String("Build"),
				Actions:   &[]awscodepipeline.IAction{buildAction},
			},
			{
				StageName: jsii.String("Deploy"),
				Actions:   &[]awscodepipeline.IAction{deployAction},
			},
		},
	})
	awscdk.Tags_Of(pipeline).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)

	out := &PipelineResources{
		Pipeline: pipeline,
		Project:  project,
	}

	if env.HasNotifications() {
		out.Notifier = createPipelineNotifier(resources, pipeline, env)
	}

	return out
}

// createPipelineNotifier wires the Discord side-channel: an EventBridge
// rule on pipeline execution state transitions invoking a small Go lambda.
// The lambda reports state only, and its failure never blocks or fails the
// pipeline it reports on (the invocation is asynchronous and off the
// pipeline's critical path).
func createPipelineNotifier(resources *Resources, pipeline awscodepipeline.Pipeline, env config.Environment) awslambda.IFunction {
	notifier := awslambda.NewFunction(resources.Stack, jsii.String("PipelineNotifier"), &awslambda.FunctionProps{
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Architecture: awslambda.Architecture_ARM_64(),
		Handler:      jsii.String("bootstrap"),
		Code:         awslambda.Code_FromAsset(jsii.String(notifierAssetDir()), nil),
		Environment: &map[string]*string{
			"DISCORD_WEBHOOKS_URL": jsii.String(env.DiscordWebhookURL),
			"PIPELINE_NAME":        jsii.String(env.PipelineName),
		},
		Timeout: awscdk.Duration_Seconds(jsii.Number(10)),
	})
	awscdk.Tags_Of(notifier).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)
	notifier.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	pipeline.OnStateChange(jsii.String("NotifyOnStateChange"), &awsevents.OnEventOptions{
		Description: jsii.String("Pipeline execution state transitions to Discord"),
		Target:      awseventstargets.NewLambdaFunction(notifier, nil),
	})

	return notifier
}
