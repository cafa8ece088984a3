package stack

const (
	// DefaultResourceTagKey and DefaultResourceTagValue are applied to every
	// construct so environment resources are attributable in the console.
	DefaultResourceTagKey   = "project"
	DefaultResourceTagValue = "spring-fargate"

	// DatabasePort is the only port the service is allowed to reach on the
	// database host.
	DatabasePort = 5432

	// AppPort is the container port the load balancer targets.
	AppPort = 8080

	// DatabaseUsername is the fixed superuser name; only the password is
	// generated.
	DatabaseUsername = "postgres"

	// HealthCheckPath is the Spring Boot actuator endpoint the target group
	// probes before routing traffic to a replica.
	HealthCheckPath = "/actuator/health"
)

// PasswordExcludeCharacters is every character that would need escaping when
// the generated password is interpolated into a shell single-quoted string
// or a JDBC URL. A narrower exclusion set can break the bootstrap's
// ALTER USER step at first boot.
const PasswordExcludeCharacters = "\"'`@/\\ %+~#$&*()|[]{}:;<>?!=,"
