package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"

	"spring-fargate-infra/config"
	"spring-fargate-infra/stack"
)

const (
	defaultConfigPath  = "config.yaml"
	defaultOverlayPath = ".env"
)

func main() {
	defer jsii.Close()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	envs, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	overlay, err := config.LoadOverlay(defaultOverlayPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := awscdk.NewApp(nil)

	// Environments with the deploy flag unset contribute nothing: no stack,
	// no resources, no partial deploys.
	for _, env := range envs.Deployable() {
		stack.NewAppStack(app, env.StackName+"-stack", &stack.AppStackProps{
			StackProps: awscdk.StackProps{
				Env: &awscdk.Environment{
					Account: jsii.String(os.Getenv("CDK_DEFAULT_ACCOUNT")),
					Region:  jsii.String(env.Region),
				},
			},
			Environment: env,
			Overlay:     overlay,
		})
	}

	app.Synth(nil)
}
