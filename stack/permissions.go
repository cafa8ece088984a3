package stack

import (
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/jsii-runtime-go"
)

// wirePermissions grants exactly the cross-component permissions the
// system needs. It runs last because it requires handles into every prior
// component. Each grant is an individually named allow path; nothing here
// widens beyond the named interaction, and any future widening must be a
// deliberate edit to this file.
func wirePermissions(network *NetworkResources, database *DatabaseResources, service *ServiceResources) {
	// Image pull: execution role only. The task role never touches ECR.
	service.Repository.GrantPull(service.TaskDef.ObtainExecutionRole())

	// Secret read: the service injects the password at task start, the
	// database host fetches it during bootstrap.
	database.CredentialsSecret.GrantRead(service.TaskDef.TaskRole(), nil)
	database.CredentialsSecret.GrantRead(database.Instance.Role(), nil)

	// Init scripts: read-only, database host only.
	database.ScriptsBucket.GrantRead(database.Instance.Role(), nil)

	// Network path: service tasks to the database port, nothing else. The
	// service never gets subnet-wide access to the database host.
	network.DatabaseSG.AddIngressRule(
		awsec2.Peer_SecurityGroupId(network.ServiceSG.SecurityGroupId(), nil),
		awsec2.Port_Tcp(jsii.Number(DatabasePort)),
		jsii.String("Application tasks to Postgres"),
		nil,
	)
}
