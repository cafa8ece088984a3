package stack

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapplicationautoscaling"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecr"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awselasticloadbalancingv2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53targets"
	"github.com/aws/jsii-runtime-go"

	"spring-fargate-infra/config"
)

// ServiceResources holds the container service and its traffic entrypoint.
type ServiceResources struct {
	Cluster      awsecs.Cluster
	TaskDef      awsecs.FargateTaskDefinition
	Service      awsecs.FargateService
	Repository   awsecr.IRepository
	LoadBalancer awselasticloadbalancingv2.ApplicationLoadBalancer
	LogGroup     awslogs.ILogGroup
}

// Autoscaling bounds. Minimum zero means a cold environment scales to
// nothing; the ceiling is deliberately small.
const (
	minTaskCount = 0
	maxTaskCount = 4
)

// ContainerEnvironment merges the base Spring environment with the overlay.
// Overlay keys win over base keys, but the datasource URL is applied last
// and unconditionally: it is always derived from the live database host.
func ContainerEnvironment(base map[string]string, overlay map[string]string, datasourceURL string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay)+1)
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	merged["SPRING_DATASOURCE_URL"] = datasourceURL
	return merged
}

// createServiceResources declares the load-balanced, autoscaled Fargate
// service running the application image.
func createServiceResources(resources *Resources, network *NetworkResources, database *DatabaseResources, env config.Environment, overlay map[string]string) *ServiceResources {
	cluster := awsecs.NewCluster(resources.Stack, jsii.String("AppCluster"), &awsecs.ClusterProps{
		Vpc:                            network.Vpc,
		EnableFargateCapacityProviders: jsii.Bool(true),
	})
	awscdk.Tags_Of(cluster).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)
	cluster.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	logGroup := awslogs.NewLogGroup(resources.Stack, jsii.String("AppLogGroup"), &awslogs.LogGroupProps{
		LogGroupName:  jsii.String("/ecs/" + env.StackName),
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})
	awscdk.Tags_Of(logGroup).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)

	taskDef := awsecs.NewFargateTaskDefinition(resources.Stack, jsii.String("AppTaskDef"), &awsecs.FargateTaskDefinitionProps{
		Cpu:            jsii.Number(512),
		MemoryLimitMiB: jsii.Number(1024),
	})
	awscdk.Tags_Of(taskDef).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)
	taskDef.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	// The repository is imported, not created: the image tag must already
	// exist in the registry at task placement time or placement fails.
	repository := awsecr.Repository_FromRepositoryName(resources.Stack, jsii.String("AppRepository"), jsii.String(env.ECRRepositoryName))

	datasourceURL := DatasourceURL(*database.Instance.InstancePrivateIp(), env.DatabaseName)
	containerEnv := ContainerEnvironment(map[string]string{
		"SERVER_PORT":                fmt.Sprintf("%d", AppPort),
		"SPRING_DATASOURCE_USERNAME": DatabaseUsername,
	}, overlay, datasourceURL)

	environment := make(map[string]*string, len(containerEnv))
	for _, key := range config.OverlayKeys(containerEnv) {
		environment[key] = jsii.String(containerEnv[key])
	}

	container := taskDef.AddContainer(jsii.String(env.ContainerName), &awsecs.ContainerDefinitionOptions{
		ContainerName: jsii.String(env.ContainerName),
		Image:         awsecs.ContainerImage_FromEcrRepository(repository, jsii.String("latest")),
		Logging: awsecs.LogDrivers_AwsLogs(&awsecs.AwsLogDriverProps{
			StreamPrefix: jsii.String(env.StackName),
			LogGroup:     logGroup,
		}),
		Environment: &environment,
		Secrets: &map[string]awsecs.Secret{
			"SPRING_DATASOURCE_PASSWORD": awsecs.Secret_FromSecretsManager(database.CredentialsSecret, jsii.String("password")),
		},
	})
	container.AddPortMappings(&awsecs.PortMapping{
		ContainerPort: jsii.Number(AppPort),
	})

	taskSubnets := awsec2.SubnetType_PUBLIC
	assignPublicIP := true
	if env.NetworkMode == config.NetworkModePublicPrivate {
		taskSubnets = awsec2.SubnetType_PRIVATE_WITH_EGRESS
		assignPublicIP = false
	}

	// The circuit breaker is the system's core resilience mechanism: a
	// rollout whose replicas keep failing health checks is aborted and the
	// previous replica set keeps serving.
	service := awsecs.NewFargateService(resources.Stack, jsii.String("AppService"), &awsecs.FargateServiceProps{
		Cluster:        cluster,
		TaskDefinition: taskDef,
		DesiredCount:   jsii.Number(1),
		VpcSubnets: &awsec2.SubnetSelection{
			SubnetType: taskSubnets,
		},
		AssignPublicIp: jsii.Bool(assignPublicIP),
		SecurityGroups: &[]awsec2.ISecurityGroup{network.ServiceSG},
		CircuitBreaker: &awsecs.DeploymentCircuitBreaker{
			Enable:   jsii.Bool(true),
			Rollback: jsii.Bool(true),
		},
		CapacityProviderStrategies: &[]*awsecs.CapacityProviderStrategy{
			{
				CapacityProvider: jsii.String("FARGATE_SPOT"),
				Weight:           jsii.Number(2),
			},
			{
				CapacityProvider: jsii.String("FARGATE"),
				Weight:           jsii.Number(1),
			},
		},
	})
	awscdk.Tags_Of(service).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)
	service.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	// Independent cooldowns keep CPU-driven scaling from oscillating:
	// scale-in waits longer than scale-out.
	scaling := service.AutoScaleTaskCount(&awsapplicationautoscaling.EnableScalingProps{
		MinCapacity: jsii.Number(minTaskCount),
		MaxCapacity: jsii.Number(maxTaskCount),
	})
	scaling.ScaleOnCpuUtilization(jsii.String("CpuScaling"), &awsecs.CpuUtilizationScalingProps{
		TargetUtilizationPercent: jsii.Number(60),
		ScaleInCooldown:          awscdk.Duration_Seconds(jsii.Number(120)),
		ScaleOutCooldown:         awscdk.Duration_Seconds(jsii.Number(60)),
	})

	loadBalancer := createLoadBalancer(resources, network, service, env)

	return &ServiceResources{
		Cluster:      cluster,
		TaskDef:      taskDef,
		Service:      service,
		Repository:   repository,
		LoadBalancer: loadBalancer,
		LogGroup:     logGroup,
	}
}

// createLoadBalancer fronts the service with an internet-facing ALB. With
// DNS configured the service terminates TLS and HTTP redirects to HTTPS;
// without it the ALB's default endpoint serves plain HTTP.
func createLoadBalancer(resources *Resources, network *NetworkResources, service awsecs.FargateService, env config.Environment) awselasticloadbalancingv2.ApplicationLoadBalancer {
	loadBalancer := awselasticloadbalancingv2.NewApplicationLoadBalancer(resources.Stack, jsii.String("AppALB"), &awselasticloadbalancingv2.ApplicationLoadBalancerProps{
		Vpc:            network.Vpc,
		InternetFacing: jsii.Bool(true),
		VpcSubnets: &awsec2.SubnetSelection{
			SubnetType: awsec2.SubnetType_PUBLIC,
		},
	})
	awscdk.Tags_Of(loadBalancer).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)
	loadBalancer.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	targetGroup := awselasticloadbalancingv2.NewApplicationTargetGroup(resources.Stack, jsii.String("AppTargetGroup"), &awselasticloadbalancingv2.ApplicationTargetGroupProps{
		Port:       jsii.Number(AppPort),
		Protocol:   awselasticloadbalancingv2.ApplicationProtocol_HTTP,
		Vpc:        network.Vpc,
		TargetType: awselasticloadbalancingv2.TargetType_IP,
		HealthCheck: &awselasticloadbalancingv2.HealthCheck{
			Path:                    jsii.String(HealthCheckPath),
			HealthyHttpCodes:        jsii.String("200"),
			HealthyThresholdCount:   jsii.Number(2),
			UnhealthyThresholdCount: jsii.Number(3),
			Timeout:                 awscdk.Duration_Seconds(jsii.Number(5)),
			Interval:                awscdk.Duration_Seconds(jsii.Number(30)),
		},
	})
	awscdk.Tags_Of(targetGroup).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)

	service.AttachToApplicationTargetGroup(targetGroup)

	if env.HasDNS() {
		certificate := awselasticloadbalancingv2.ListenerCertificate_FromArn(jsii.String(env.CertificateARN))

		loadBalancer.AddListener(jsii.String("HttpsListener"), &awselasticloadbalancingv2.BaseApplicationListenerProps{
			Port:         jsii.Number(443),
			Protocol:     awselasticloadbalancingv2.ApplicationProtocol_HTTPS,
			Certificates: &[]awselasticloadbalancingv2.IListenerCertificate{certificate},
			DefaultTargetGroups: &[]awselasticloadbalancingv2.IApplicationTargetGroup{
				targetGroup,
			},
		})
		loadBalancer.AddRedirect(&awselasticloadbalancingv2.ApplicationLoadBalancerRedirectConfig{
			SourcePort:     jsii.Number(80),
			SourceProtocol: awselasticloadbalancingv2.ApplicationProtocol_HTTP,
			TargetPort:     jsii.Number(443),
			TargetProtocol: awselasticloadbalancingv2.ApplicationProtocol_HTTPS,
		})

		zone := awsroute53.HostedZone_FromLookup(resources.Stack, jsii.String("AppZone"), &awsroute53.HostedZoneProviderProps{
			DomainName: jsii.String(env.DomainName),
		})
		var recordName *string
		if env.Subdomain != "" {
			recordName = jsii.String(env.Subdomain)
		}
		awsroute53.NewARecord(resources.Stack, jsii.String("AppAliasRecord"), &awsroute53.ARecordProps{
			Zone:       zone,
			RecordName: recordName,
			Target:     awsroute53.RecordTarget_FromAlias(awsroute53targets.NewLoadBalancerTarget(loadBalancer, nil)),
		})
	} else {
		loadBalancer.AddListener(jsii.String("HttpListener"), &awselasticloadbalancingv2.BaseApplicationListenerProps{
			Port:     jsii.Number(80),
			Protocol: awselasticloadbalancingv2.ApplicationProtocol_HTTP,
			DefaultTargetGroups: &[]awselasticloadbalancingv2.IApplicationTargetGroup{
				targetGroup,
			},
		})
	}

	return loadBalancer
}
