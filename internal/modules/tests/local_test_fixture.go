package tests

import (
	"os"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ServiceWait pairs a compose service's exposed port with the strategy that
// decides when it is ready.
type ServiceWait struct {
	Port     nat.Port
	Strategy wait.Strategy
}

// LocalTestFixture brings the compose stack up for integration tests and
// tears it down afterwards. Setting SKIP_INFRASTRUCTURE=true reuses an
// already-running stack instead.
type LocalTestFixture struct {
	compose testcontainers.DockerCompose
}

func NewLocalTestFixture(dockerComposePath string, services map[string]ServiceWait) (LocalTestFixture, error) {
	var compose testcontainers.DockerCompose = testcontainers.NewLocalDockerCompose(
		[]string{dockerComposePath},
		uuid.NewString(),
	)

	for serviceName, service := range services {
		compose = compose.WithExposedService(serviceName, service.Port.Int(), service.Strategy)
	}

	return LocalTestFixture{compose}, nil
}

func (f *LocalTestFixture) Start() error {
	if skip := os.Getenv("SKIP_INFRASTRUCTURE"); skip == "true" {
		return nil
	}

	execErr := f.compose.WithCommand([]string{"up", "-d"}).Invoke()
	return execErr.Error
}

func (f *LocalTestFixture) Stop() error {
	if skip := os.Getenv("SKIP_INFRASTRUCTURE"); skip == "true" {
		return nil
	}

	execErr := f.compose.Down()
	return execErr.Error
}
