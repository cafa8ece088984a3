package stack

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/jsii-runtime-go"

	"spring-fargate-infra/config"
)

// NetworkResources holds the VPC and the two security groups every other
// component attaches to.
type NetworkResources struct {
	Vpc        awsec2.Vpc
	DatabaseSG awsec2.SecurityGroup
	ServiceSG  awsec2.SecurityGroup
}

// natGatewayCount maps the layout mode to its NAT gateway count. Public-only
// layouts must carry zero NAT gateways; the private layout keeps one so
// egress subnets are actually reachable.
func natGatewayCount(mode string) float64 {
	if mode == config.NetworkModePublicPrivate {
		return 1
	}
	return 0
}

// PlanSubnets returns the subnet configuration for the requested layout
// mode. Requesting private egress subnets with zero NAT gateways is rejected
// here, at graph construction time: declaring them would synthesize subnets
// whose resources can never reach the internet, and that failure would
// otherwise only surface after deploy.
func PlanSubnets(mode string, natGateways float64) ([]*awsec2.SubnetConfiguration, error) {
	switch mode {
	case "", config.NetworkModePublicOnly:
		return []*awsec2.SubnetConfiguration{
			{
				CidrMask:   jsii.Number(24),
				Name:       jsii.String("Public"),
				SubnetType: awsec2.SubnetType_PUBLIC,
			},
		}, nil
	case config.NetworkModePublicPrivate:
		if natGateways == 0 {
			return nil, fmt.Errorf("network: layout %q requires at least one NAT gateway; private egress subnets without NAT are unreachable", mode)
		}
		return []*awsec2.SubnetConfiguration{
			{
				CidrMask:   jsii.Number(24),
				Name:       jsii.String("Public"),
				SubnetType: awsec2.SubnetType_PUBLIC,
			},
			{
				CidrMask:   jsii.Number(24),
				Name:       jsii.String("Private"),
				SubnetType: awsec2.SubnetType_PRIVATE_WITH_EGRESS,
			},
		}, nil
	default:
		return nil, fmt.Errorf("network: unknown layout mode %q", mode)
	}
}

// createNetworkResources builds the VPC and firewall policy for one
// environment. Every ingress rule is individually declared with a
// description; nothing is inferred from subnet membership.
func createNetworkResources(resources *Resources, env config.Environment) *NetworkResources {
	natGateways := natGatewayCount(env.NetworkMode)
	subnets, err := PlanSubnets(env.NetworkMode, natGateways)
	if err != nil {
		panic(err)
	}

	vpc := awsec2.NewVpc(resources.Stack, jsii.String("AppVpc"), &awsec2.VpcProps{
		VpcName:             jsii.String(env.VPCName),
		MaxAzs:              jsii.Number(2),
		NatGateways:         jsii.Number(natGateways),
		SubnetConfiguration: &subnets,
	})
	awscdk.Tags_Of(vpc).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)
	vpc.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	databaseSG := awsec2.NewSecurityGroup(resources.Stack, jsii.String("DatabaseSG"), &awsec2.SecurityGroupProps{
		Vpc:               vpc,
		SecurityGroupName: jsii.String(env.SecurityGroupName),
		Description:       jsii.String("Firewall policy for the Postgres host"),
		AllowAllOutbound:  jsii.Bool(true),
	})
	awscdk.Tags_Of(databaseSG).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)
	databaseSG.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	// Operator SSH access is an intentional, separately toggleable rule. It
	// is never bundled into another allow path so it can be audited and
	// revoked on its own.
	if env.AllowSSHFromAnywhere {
		databaseSG.AddIngressRule(
			awsec2.Peer_AnyIpv4(),
			awsec2.Port_Tcp(jsii.Number(22)),
			jsii.String("Operator SSH access to the database host"),
			nil,
		)
	}

	serviceSG := awsec2.NewSecurityGroup(resources.Stack, jsii.String("ServiceSG"), &awsec2.SecurityGroupProps{
		Vpc:              vpc,
		Description:      jsii.String("Egress source for application tasks"),
		AllowAllOutbound: jsii.Bool(true),
	})
	awscdk.Tags_Of(serviceSG).Add(jsii.String(DefaultResourceTagKey), jsii.String(DefaultResourceTagValue), nil)
	serviceSG.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	return &NetworkResources{
		Vpc:        vpc,
		DatabaseSG: databaseSG,
		ServiceSG:  serviceSG,
	}
}
