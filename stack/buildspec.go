package stack

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2/awscodebuild"
)

// BuildPhase is one named phase of the CodeBuild script. Phases run in
// order; a failing command fails the phase and the build.
type BuildPhase struct {
	Name     string
	Commands []string
}

// manifestFile is the sole contract between the Build and Deploy stages: a
// one-element list mapping the configured container name to the pushed
// image reference. The Deploy stage fails hard if the name does not match
// the live task definition.
const manifestFile = "imagedefinitions.json"

// BuildPhases returns the three-phase build script. The repository URI and
// container name arrive as CodeBuild environment variables so the buildspec
// itself stays constant across deploys.
func BuildPhases() []BuildPhase {
	return []BuildPhase{
		{
			Name: "pre_build",
			Commands: []string{
				// Private registry for push, public gallery for base images.
				"aws ecr get-login-password --region $AWS_DEFAULT_REGION | docker login --username AWS --password-stdin $REPOSITORY_URI",
				"aws ecr-public get-login-password --region us-east-1 | docker login --username AWS --password-stdin public.ecr.aws",
				"COMMIT_TAG=$(echo $CODEBUILD_RESOLVED_SOURCE_VERSION | cut -c 1-7)",
				// Cache seed; first build of a fresh repository has nothing
				// to pull, which is fine.
				"docker pull $REPOSITORY_URI:latest || true",
			},
		},
		{
			Name: "build",
			Commands: []string{
				"docker build --build-arg BUILDKIT_INLINE_CACHE=1 --cache-from $REPOSITORY_URI:latest -t $REPOSITORY_URI:latest -t $REPOSITORY_URI:$COMMIT_TAG .",
			},
		},
		{
			Name: "post_build",
			Commands: []string{
				"docker push $REPOSITORY_URI:latest",
				"docker push $REPOSITORY_URI:$COMMIT_TAG",
				fmt.Sprintf(`printf '[{"name":"%%s","imageUri":"%%s"}]' "$CONTAINER_NAME" "$REPOSITORY_URI:latest" > %s`, manifestFile),
			},
		},
	}
}

// buildSpecObject renders the standard three-phase script as a CodeBuild
// buildspec.
func buildSpecObject() awscodebuild.BuildSpec {
	spec := RenderBuildSpec(BuildPhases())
	return awscodebuild.BuildSpec_FromObject(&spec)
}

// RenderBuildSpec shapes the phases into the object form CodeBuild expects.
func RenderBuildSpec(phases []BuildPhase) map[string]interface{} {
	phaseMap := make(map[string]interface{}, len(phases))
	for _, phase := range phases {
		phaseMap[phase.Name] = map[string]interface{}{
			"commands": phase.Commands,
		}
	}
	return map[string]interface{}{
		"version": "0.2",
		"phases":  phaseMap,
		"artifacts": map[string]interface{}{
			"files": []string{manifestFile},
		},
	}
}
