// Package stack declares the per-environment resource graph: network,
// database host, container service, permission wiring and the optional
// delivery pipeline. Construction is a single synchronous pass; the
// synthesized graph is reconciled by CloudFormation, not by this code.
package stack

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"spring-fargate-infra/config"
)

// AppStackProps carries one validated environment record and the optional
// dotenv overlay into stack construction.
type AppStackProps struct {
	awscdk.StackProps
	Environment config.Environment
	Overlay     map[string]string
}

// AppStack is the complete resource graph for one environment.
type AppStack struct {
	awscdk.Stack
	Network  *NetworkResources
	Database *DatabaseResources
	Service  *ServiceResources
	Pipeline *PipelineResources
}

// Resources holds the stack handle and resolved account/region shared by
// every component builder.
type Resources struct {
	Stack   awscdk.Stack
	Account string
	Region  string
}

// NewAppStack builds the environment's resource graph. Components are
// created leaf-first; permission wiring runs last because it needs handles
// into everything, and the pipeline is only attached when its configuration
// group is fully present.
func NewAppStack(scope constructs.Construct, id string, props *AppStackProps) *AppStack {
	stack := awscdk.NewStack(scope, &id, &props.StackProps)
	env := props.Environment

	resources := &Resources{
		Stack:   stack,
		Account: *stack.Account(),
		Region:  *stack.Region(),
	}

	network := createNetworkResources(resources, env)
	secret := createDatabaseSecret(resources, env)
	database := createDatabaseResources(resources, network, secret, env)
	service := createServiceResources(resources, network, database, env, props.Overlay)

	wirePermissions(network, database, service)

	var pipeline *PipelineResources
	if env.HasPipeline() {
		pipeline = createPipelineResources(resources, service, env)
	}

	createOutputs(resources, database, service, env)

	return &AppStack{
		Stack:    stack,
		Network:  network,
		Database: database,
		Service:  service,
		Pipeline: pipeline,
	}
}

// createOutputs exposes the operator-facing handles: database address, load
// balancer endpoint, registry URI, and the public URL when DNS is
// configured.
func createOutputs(resources *Resources, database *DatabaseResources, service *ServiceResources, env config.Environment) {
	awscdk.NewCfnOutput(resources.Stack, jsii.String("DatabaseHostPublicIp"), &awscdk.CfnOutputProps{
		Value:       database.Instance.InstancePublicIp(),
		Description: jsii.String("Public address of the Postgres host"),
	})

	awscdk.NewCfnOutput(resources.Stack, jsii.String("LoadBalancerDNS"), &awscdk.CfnOutputProps{
		Value:       service.LoadBalancer.LoadBalancerDnsName(),
		Description: jsii.String("Default endpoint of the application load balancer"),
	})

	awscdk.NewCfnOutput(resources.Stack, jsii.String("RepositoryURI"), &awscdk.CfnOutputProps{
		Value:       service.Repository.RepositoryUri(),
		Description: jsii.String("ECR repository the service pulls from"),
	})

	if env.HasDNS() {
		awscdk.NewCfnOutput(resources.Stack, jsii.String("ApplicationURL"), &awscdk.CfnOutputProps{
			Value:       jsii.String("https://" + env.AppDomain()),
			Description: jsii.String("Public application URL"),
		})
	}
}
